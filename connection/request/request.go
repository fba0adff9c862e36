/*
The request package describes what a socket connects to and how: the uri, the
transports to try in order of preference and the reconnect behaviour. A
RequestSpec can only be made through a Builder and cannot be changed once built.
*/
package request

import (
	"net/http"
	"net/url"
	"time"

	"bastionzero.com/wasync/connection/transporter"
)

// Unbounded lifts the cap on reconnect attempts
const Unbounded = -1

const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultReconnectDelay    = time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
)

type Method string

const (
	GET  Method = http.MethodGet
	POST Method = http.MethodPost
)

type RequestSpec struct {
	uri        *url.URL
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

func (r *RequestSpec) URI() *url.URL {
	uri := *r.uri
	return &uri
}

func (r *RequestSpec) Method() Method {
	return r.method
}

// Transports returns the transport kinds in order of preference
func (r *RequestSpec) Transports() []transporter.Kind {
	return append([]transporter.Kind(nil), r.transports...)
}

func (r *RequestSpec) Headers() http.Header {
	return r.headers.Clone()
}

func (r *RequestSpec) Reconnect() bool {
	return r.reconnect
}

// MaxReconnectAttempts is the number of retries allowed per transport, or
// Unbounded. It is always 0 when reconnecting is disabled.
func (r *RequestSpec) MaxReconnectAttempts() int {
	if !r.reconnect {
		return 0
	}
	return r.maxReconnectAttempts
}

func (r *RequestSpec) ReconnectDelay() time.Duration {
	return r.reconnectDelay
}

func (r *RequestSpec) MaxReconnectDelay() time.Duration {
	return r.maxReconnectDelay
}

// IdleTimeout is how long a connection may go without receiving a frame
// before it is considered dropped. Zero disables the check.
func (r *RequestSpec) IdleTimeout() time.Duration {
	return r.idleTimeout
}

// HandshakeTimeout bounds a single transport's dial
func (r *RequestSpec) HandshakeTimeout() time.Duration {
	if r.connectTimeout > 0 {
		return r.connectTimeout
	}
	if r.idleTimeout > 0 {
		return r.idleTimeout
	}
	return DefaultConnectTimeout
}

// Target is the dial target handed to every transporter
func (r *RequestSpec) Target() transporter.Target {
	return transporter.Target{
		Url:     r.URI(),
		Method:  string(r.method),
		Headers: r.Headers(),
	}
}
