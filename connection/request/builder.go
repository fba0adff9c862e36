package request

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"bastionzero.com/wasync/connection/transporter"
)

type Builder struct {
	uri        string
	method     Method
	transports []transporter.Kind
	headers    http.Header

	reconnect            bool
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	maxReconnectDelay    time.Duration

	idleTimeout    time.Duration
	connectTimeout time.Duration
}

func NewBuilder() *Builder {
	return &Builder{
		method:               GET,
		headers:              http.Header{},
		reconnect:            true,
		maxReconnectAttempts: Unbounded,
		reconnectDelay:       DefaultReconnectDelay,
		maxReconnectDelay:    DefaultMaxReconnectDelay,
	}
}

func (b *Builder) URI(uri string) *Builder {
	b.uri = uri
	return b
}

func (b *Builder) Method(method Method) *Builder {
	b.method = method
	return b
}

// Transport appends kinds to the preference list
func (b *Builder) Transport(kinds ...transporter.Kind) *Builder {
	b.transports = append(b.transports, kinds...)
	return b
}

func (b *Builder) Header(key string, value string) *Builder {
	b.headers.Add(key, value)
	return b
}

func (b *Builder) Reconnect(enabled bool) *Builder {
	b.reconnect = enabled
	return b
}

func (b *Builder) MaxReconnectAttempts(attempts int) *Builder {
	b.maxReconnectAttempts = attempts
	return b
}

func (b *Builder) ReconnectDelay(base time.Duration, max time.Duration) *Builder {
	b.reconnectDelay = base
	b.maxReconnectDelay = max
	return b
}

func (b *Builder) IdleTimeout(timeout time.Duration) *Builder {
	b.idleTimeout = timeout
	return b
}

func (b *Builder) ConnectTimeout(timeout time.Duration) *Builder {
	b.connectTimeout = timeout
	return b
}

func (b *Builder) Build() (*RequestSpec, error) {
	uri, err := b.validateUri()
	if err != nil {
		return nil, err
	}

	switch b.method {
	case GET, POST:
	default:
		return nil, &ConfigError{Field: "method", Reason: fmt.Sprintf("unsupported method %q", b.method)}
	}

	if len(b.transports) == 0 {
		return nil, &ConfigError{Field: "transports", Reason: "at least one transport is required"}
	}

	seen := make(map[transporter.Kind]bool, len(b.transports))
	for _, kind := range b.transports {
		if !kind.Valid() {
			return nil, &ConfigError{Field: "transports", Reason: fmt.Sprintf("unknown transport %s", kind)}
		} else if seen[kind] {
			return nil, &ConfigError{Field: "transports", Reason: fmt.Sprintf("transport %s is listed more than once", kind)}
		}
		seen[kind] = true
	}

	// the cap only means something if we are going to reconnect at all
	if b.reconnect {
		if b.maxReconnectAttempts < Unbounded {
			return nil, &ConfigError{Field: "maxReconnectAttempts", Reason: "must be zero or more, or Unbounded"}
		}
		if b.reconnectDelay <= 0 {
			return nil, &ConfigError{Field: "reconnectDelay", Reason: "must be positive"}
		}
		if b.maxReconnectDelay < b.reconnectDelay {
			return nil, &ConfigError{Field: "maxReconnectDelay", Reason: "must not be smaller than the reconnect delay"}
		}
	}

	if b.idleTimeout < 0 {
		return nil, &ConfigError{Field: "idleTimeout", Reason: "must not be negative"}
	} else if b.connectTimeout < 0 {
		return nil, &ConfigError{Field: "connectTimeout", Reason: "must not be negative"}
	}

	return &RequestSpec{
		uri:                  uri,
		method:               b.method,
		transports:           append([]transporter.Kind(nil), b.transports...),
		headers:              b.headers.Clone(),
		reconnect:            b.reconnect,
		maxReconnectAttempts: b.maxReconnectAttempts,
		reconnectDelay:       b.reconnectDelay,
		maxReconnectDelay:    b.maxReconnectDelay,
		idleTimeout:          b.idleTimeout,
		connectTimeout:       b.connectTimeout,
	}, nil
}

func (b *Builder) validateUri() (*url.URL, error) {
	if b.uri == "" {
		return nil, &ConfigError{Field: "uri", Reason: "uri is required"}
	}

	uri, err := url.ParseRequestURI(b.uri)
	if err != nil {
		return nil, &ConfigError{Field: "uri", Reason: "malformed uri", InnerErr: err}
	}

	switch uri.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, &ConfigError{Field: "uri", Reason: fmt.Sprintf("unsupported scheme %q", uri.Scheme)}
	}

	if uri.Host == "" {
		return nil, &ConfigError{Field: "uri", Reason: "uri has no host"}
	}

	return uri, nil
}
