package transporter

import (
	"context"
	"net/http"
	"net/url"

	"bastionzero.com/wasync/logger"
)

// Servers that multiplex every transport on one uri can read this header to
// learn which one the client is speaking
const TransportHeader = "X-Wasync-Transport"

// Target is everything a Transporter needs to know to open its connection
type Target struct {
	Url     *url.URL
	Method  string
	Headers http.Header
}

// Transporter is the raw connect/send/receive primitive for a single transport
// kind. An instance is dialed at most once; reconnecting means building a new one.
type Transporter interface {
	Kind() Kind

	// Dial performs the handshake. It blocks until the transport is usable, the
	// handshake fails, or ctx is done.
	Dial(ctx context.Context, target Target) error

	Send(message []byte) error

	// Inbound yields frames in the order they were received and is closed once
	// the underlying stream ends. Err reports why it ended.
	Inbound() <-chan []byte

	Done() <-chan struct{}
	Err() error

	// Close is idempotent and only returns once the receive goroutine has exited
	Close(reason error)
}

type Factory func(logger *logger.Logger) Transporter

// Table is the lookup from kind to the constructor for its Transporter
type Table map[Kind]Factory

func (t Table) New(kind Kind, logger *logger.Logger) (Transporter, error) {
	factory, ok := t[kind]
	if !ok || factory == nil {
		return nil, &UnsupportedError{Kind: kind, Reason: "no transporter registered"}
	}
	return factory(logger.GetTransportLogger(kind.String())), nil
}

// CopyHeaders returns a copy of h with the transport header set to kind
func CopyHeaders(h http.Header, kind Kind) http.Header {
	headers := http.Header{}
	for key, values := range h {
		headers[key] = append([]string(nil), values...)
	}
	headers.Set(TransportHeader, kind.String())
	return headers
}
