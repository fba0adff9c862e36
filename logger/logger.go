/*
The logger package wraps zerolog so that every component in the socket runtime
logs in the same structured format. Loggers form a tree: a root logger is built
from a Config and components derive children that carry their own fields.
*/
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type DebugLevel = zerolog.Level

const (
	TraceLevel DebugLevel = zerolog.TraceLevel
	DebugLvl   DebugLevel = zerolog.DebugLevel
	InfoLevel  DebugLevel = zerolog.InfoLevel
	WarnLevel  DebugLevel = zerolog.WarnLevel
	ErrorLevel DebugLevel = zerolog.ErrorLevel
	Disabled   DebugLevel = zerolog.Disabled
)

const (
	defaultLogLevel = DebugLvl

	// lumberjack rotation settings
	maxLogFileSizeMB = 10
	maxLogBackups    = 5
	maxLogAgeDays    = 28
)

type Config struct {
	// Writers which receive human readable output
	ConsoleWriters []io.Writer

	// If set, json logs are also appended to this file and rotated
	FilePath string

	// Defaults to debug when left empty
	LogLevel DebugLevel
}

type Logger struct {
	logger zerolog.Logger
}

func New(config *Config) (*Logger, error) {
	if config == nil {
		config = &Config{}
	}

	var writers []io.Writer
	for _, writer := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        writer,
			NoColor:    true,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", config.FilePath, err)
		}

		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    maxLogFileSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   true,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	level := config.LogLevel
	if level == zerolog.NoLevel {
		level = defaultLogLevel
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: zl}, nil
}

// ToLogLevel converts a user supplied level name, falling back to debug
func ToLogLevel(level string) DebugLevel {
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && parsed != zerolog.NoLevel {
		return parsed
	}
	return defaultLogLevel
}

func (l *Logger) with(key string, value string) *Logger {
	return &Logger{
		logger: l.logger.With().Str(key, value).Logger(),
	}
}

func (l *Logger) GetComponentLogger(component string) *Logger {
	return l.with("component", component)
}

func (l *Logger) GetSocketLogger(socketId string) *Logger {
	return l.with("socketId", socketId)
}

func (l *Logger) GetTransportLogger(transport string) *Logger {
	return l.with("transport", transport)
}

func (l *Logger) Trace(msg string) {
	l.logger.Trace().Msg(msg)
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	l.logger.Trace().Msgf(format, a...)
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.logger.Debug().Msgf(format, a...)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.logger.Info().Msgf(format, a...)
}

func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	l.logger.Warn().Msgf(format, a...)
}

func (l *Logger) Error(err error) {
	l.logger.Error().Msg(err.Error())
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	l.logger.Error().Msgf(format, a...)
}
