package socket

import "bastionzero.com/wasync/connection/statemachine"

type Status int

const (
	// Init is a socket that has not connected yet
	Init Status = iota
	Open
	Reopened
	// Error is a socket that lost its connection and is reconnecting
	Error
	Close
)

func (s Status) String() string {
	switch s {
	case Init:
		return "INIT"
	case Open:
		return "OPEN"
	case Reopened:
		return "REOPENED"
	case Error:
		return "ERROR"
	case Close:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

func statusOf(state statemachine.State, connectedBefore bool, reopened bool) Status {
	switch state {
	case statemachine.Idle:
		return Init
	case statemachine.Negotiating:
		if connectedBefore {
			return Error
		}
		return Init
	case statemachine.Connected:
		if reopened {
			return Reopened
		}
		return Open
	case statemachine.Reconnecting:
		return Error
	default:
		return Close
	}
}
