package statemachine

import "fmt"

type State int

const (
	Idle State = iota
	Negotiating
	Connected
	Reconnecting
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Negotiating:
		return "NEGOTIATING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}
