/*
Package config loads a socket's RequestSpec from a yaml file. Environment
variables take precedence over the file so that a deployed process can be
pointed somewhere else without touching the shared file:

	uri: https://example.com/push
	method: GET
	transports: [websocket, sse, long-polling]
	headers:
	  Authorization: Bearer abc
	reconnect: true
	maxReconnectAttempts: 5
	reconnectDelay: 1s
	maxReconnectDelay: 30s
	idleTimeout: 1m
	connectTimeout: 10s

The file is read under a shared lock so that it is never observed half written
by a process that is updating it.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"bastionzero.com/wasync/connection/request"
	"bastionzero.com/wasync/connection/transporter"
)

const (
	UriEnvVar                  = "WASYNC_URI"
	MethodEnvVar               = "WASYNC_METHOD"
	TransportsEnvVar           = "WASYNC_TRANSPORTS"
	ReconnectEnvVar            = "WASYNC_RECONNECT"
	MaxReconnectAttemptsEnvVar = "WASYNC_MAX_RECONNECT_ATTEMPTS"
	ReconnectDelayEnvVar       = "WASYNC_RECONNECT_DELAY"
	MaxReconnectDelayEnvVar    = "WASYNC_MAX_RECONNECT_DELAY"
	IdleTimeoutEnvVar          = "WASYNC_IDLE_TIMEOUT"
	ConnectTimeoutEnvVar       = "WASYNC_CONNECT_TIMEOUT"
)

type File struct {
	Uri                  string            `yaml:"uri"`
	Method               string            `yaml:"method"`
	Transports           []string          `yaml:"transports"`
	Headers              map[string]string `yaml:"headers"`
	Reconnect            *bool             `yaml:"reconnect"`
	MaxReconnectAttempts *int              `yaml:"maxReconnectAttempts"`
	ReconnectDelay       string            `yaml:"reconnectDelay"`
	MaxReconnectDelay    string            `yaml:"maxReconnectDelay"`
	IdleTimeout          string            `yaml:"idleTimeout"`
	ConnectTimeout       string            `yaml:"connectTimeout"`
}

// Load reads path, applies environment overrides and builds the request. A
// missing file is fine as long as the environment supplies everything needed.
func Load(path string) (*request.RequestSpec, error) {
	file, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := file.applyEnv(); err != nil {
		return nil, &ValidationError{InnerErr: err}
	}

	return file.Build()
}

func read(path string) (*File, error) {
	file := &File{}

	// no directory to lock in means no file either
	fileLock := flock.New(path + ".lock")
	if err := fileLock.RLock(); errors.Is(err, fs.ErrNotExist) {
		return file, nil
	} else if err != nil {
		return nil, &FileError{Path: path, InnerErr: fmt.Errorf("failed to acquire lock: %w", err)}
	}
	defer fileLock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return file, nil
	} else if err != nil {
		return nil, &FileError{Path: path, InnerErr: err}
	}

	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, &ValidationError{InnerErr: err}
	}

	return file, nil
}

func (f *File) applyEnv() error {
	if value, ok := os.LookupEnv(UriEnvVar); ok {
		f.Uri = value
	}

	if value, ok := os.LookupEnv(MethodEnvVar); ok {
		f.Method = value
	}

	if value, ok := os.LookupEnv(TransportsEnvVar); ok {
		f.Transports = nil
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				f.Transports = append(f.Transports, name)
			}
		}
	}

	if value, ok := os.LookupEnv(ReconnectEnvVar); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", ReconnectEnvVar, err)
		}
		f.Reconnect = &enabled
	}

	if value, ok := os.LookupEnv(MaxReconnectAttemptsEnvVar); ok {
		attempts, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", MaxReconnectAttemptsEnvVar, err)
		}
		f.MaxReconnectAttempts = &attempts
	}

	durations := map[string]*string{
		ReconnectDelayEnvVar:    &f.ReconnectDelay,
		MaxReconnectDelayEnvVar: &f.MaxReconnectDelay,
		IdleTimeoutEnvVar:       &f.IdleTimeout,
		ConnectTimeoutEnvVar:    &f.ConnectTimeout,
	}
	for envVar, field := range durations {
		if value, ok := os.LookupEnv(envVar); ok {
			*field = value
		}
	}

	return nil
}

// Build turns the file contents into a RequestSpec, leaving every unset field
// at the builder's default
func (f *File) Build() (*request.RequestSpec, error) {
	builder := request.NewBuilder().URI(f.Uri)

	if f.Method != "" {
		builder.Method(request.Method(strings.ToUpper(f.Method)))
	}

	for _, name := range f.Transports {
		kind, err := transporter.ParseKind(name)
		if err != nil {
			return nil, &ValidationError{InnerErr: err}
		}
		builder.Transport(kind)
	}

	for key, value := range f.Headers {
		builder.Header(key, value)
	}

	if f.Reconnect != nil {
		builder.Reconnect(*f.Reconnect)
	}

	if f.MaxReconnectAttempts != nil {
		builder.MaxReconnectAttempts(*f.MaxReconnectAttempts)
	}

	base, err := parseDuration("reconnectDelay", f.ReconnectDelay, request.DefaultReconnectDelay)
	if err != nil {
		return nil, err
	}
	max, err := parseDuration("maxReconnectDelay", f.MaxReconnectDelay, request.DefaultMaxReconnectDelay)
	if err != nil {
		return nil, err
	}
	builder.ReconnectDelay(base, max)

	idle, err := parseDuration("idleTimeout", f.IdleTimeout, 0)
	if err != nil {
		return nil, err
	}
	builder.IdleTimeout(idle)

	connect, err := parseDuration("connectTimeout", f.ConnectTimeout, 0)
	if err != nil {
		return nil, err
	}
	builder.ConnectTimeout(connect)

	spec, err := builder.Build()
	if err != nil {
		return nil, &ValidationError{InnerErr: err}
	}
	return spec, nil
}

func parseDuration(name string, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ValidationError{InnerErr: fmt.Errorf("%s: %w", name, err)}
	}
	return duration, nil
}
