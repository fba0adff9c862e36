package statemachine

import (
	"errors"
	"fmt"
	"time"

	"bastionzero.com/wasync/connection/transporter"
)

var (
	errClientInitiated    = errors.New("connection closed by the client")
	errReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// AlreadyOpenError is returned when Open is called on a machine that has
// already left the idle state
type AlreadyOpenError struct {
	State State
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("connection cannot be opened, it is already %s", e.State)
}

func (e *AlreadyOpenError) Unwrap() error { return nil }

// NotConnectedError is returned by Fire when there is no connected transport.
// Payloads are never queued for later.
type NotConnectedError struct {
	State State
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("cannot send message while connection is %s", e.State)
}

func (e *NotConnectedError) Unwrap() error { return nil }

// TransportIOError is a failure of an established transport, either while
// reading its stream or while writing to it
type TransportIOError struct {
	Kind     transporter.Kind
	InnerErr error
}

func (e *TransportIOError) Error() string {
	return fmt.Sprintf("%s transport failed: %s", e.Kind, e.InnerErr)
}

func (e *TransportIOError) Unwrap() error { return e.InnerErr }

// IdleTimeoutError means no frame arrived within the request's idle timeout
type IdleTimeoutError struct {
	Kind    transporter.Kind
	Timeout time.Duration
}

func (e *IdleTimeoutError) Error() string {
	return fmt.Sprintf("no frames received over %s in %s", e.Kind, e.Timeout)
}

func (e *IdleTimeoutError) Unwrap() error { return nil }

// ShutdownTimeoutError is returned by Close when the receive loop did not
// finish within the shutdown timeout. The machine still ends up closed.
type ShutdownTimeoutError struct {
	Timeout time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("connection did not close within %s", e.Timeout)
}

func (e *ShutdownTimeoutError) Unwrap() error { return nil }
