package negotiator

import (
	"fmt"

	"go.uber.org/multierr"

	"bastionzero.com/wasync/connection/transporter"
)

// NoViableTransportError means every candidate transport failed its handshake
type NoViableTransportError struct {
	Tried    []transporter.Kind
	InnerErr error
}

func (e *NoViableTransportError) Error() string {
	return fmt.Sprintf("no viable transport among %v: %s", e.Tried, e.InnerErr)
}

func (e *NoViableTransportError) Unwrap() error { return e.InnerErr }

// Failures lists the individual handshake errors in the order they happened
func (e *NoViableTransportError) Failures() []error {
	return multierr.Errors(e.InnerErr)
}
