package transporter

import (
	"fmt"
	"net/http"
)

// UnsupportedError means the server (or this client) explicitly does not speak
// the transport, e.g. it answered the handshake with a 404 or 426
type UnsupportedError struct {
	Kind       Kind
	StatusCode int
	Reason     string
}

func (e *UnsupportedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s is not supported by the server: %d %s", e.Kind, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("transport %s is not supported: %s", e.Kind, e.Reason)
}

func (e *UnsupportedError) Unwrap() error { return nil }

// IsUnsupportedStatus reports whether a handshake status code means the
// transport itself is unavailable rather than a transient failure
func IsUnsupportedStatus(code int) bool {
	switch code {
	case http.StatusNotFound,
		http.StatusMethodNotAllowed,
		http.StatusNotAcceptable,
		http.StatusUpgradeRequired,
		http.StatusNotImplemented:
		return true
	}
	return false
}

// ClosedError is reported by Err when the remote end finished the stream
// without an error of its own
type ClosedError struct {
	Kind Kind
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("%s stream closed by the server", e.Kind)
}

func (e *ClosedError) Unwrap() error { return nil }

// NotDialedError is returned by Send before a successful Dial or after Close
type NotDialedError struct {
	Kind Kind
}

func (e *NotDialedError) Error() string {
	return fmt.Sprintf("cannot send message because the %s transport is not connected", e.Kind)
}

func (e *NotDialedError) Unwrap() error { return nil }
