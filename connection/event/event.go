package event

import (
	"fmt"

	"bastionzero.com/wasync/connection/transporter"
)

type Type int

const (
	Open Type = iota + 1
	Message
	Close
	Error
	Reopened

	// AnyError is not an event of its own. Handlers registered under it see
	// every event that carries an error, whatever its type.
	AnyError
)

func (t Type) String() string {
	switch t {
	case Open:
		return "OPEN"
	case Message:
		return "MESSAGE"
	case Close:
		return "CLOSE"
	case Error:
		return "ERROR"
	case Reopened:
		return "REOPENED"
	case AnyError:
		return "ANY_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// Close reasons
const (
	ClientInitiated    = "client-initiated"
	ReconnectExhausted = "reconnect-exhausted"
	NoViableTransport  = "no-viable-transport"
)

type Event struct {
	Type Type

	// The transport the event happened on, zero if there was none
	Transport transporter.Kind

	// Set on Message
	Payload []byte

	// Set on Close
	Reason string

	// Set on Error, and on Close when the close was not asked for
	Err error
}

func NewOpen(kind transporter.Kind) Event {
	return Event{Type: Open, Transport: kind}
}

func NewReopened(kind transporter.Kind) Event {
	return Event{Type: Reopened, Transport: kind}
}

func NewMessage(kind transporter.Kind, payload []byte) Event {
	return Event{Type: Message, Transport: kind, Payload: payload}
}

func NewError(kind transporter.Kind, err error) Event {
	return Event{Type: Error, Transport: kind, Err: err}
}

func NewClose(kind transporter.Kind, reason string, err error) Event {
	return Event{Type: Close, Transport: kind, Reason: reason, Err: err}
}

func (e Event) String() string {
	switch e.Type {
	case Message:
		return fmt.Sprintf("%s(%d bytes)", e.Type, len(e.Payload))
	case Close:
		return fmt.Sprintf("%s(%s)", e.Type, e.Reason)
	case Error:
		return fmt.Sprintf("%s(%s)", e.Type, e.Err)
	default:
		return e.Type.String()
	}
}

type Handler func(evt Event)
