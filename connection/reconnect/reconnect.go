/*
The reconnect package decides what a connection does after it drops. Decisions
are pure data: the caller hands in where it is (transport, attempt count, last
error) and gets back what to do next and how long to wait first.
*/
package reconnect

import (
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"bastionzero.com/wasync/connection/request"
	"bastionzero.com/wasync/connection/transporter"
)

type Decision int

const (
	RetrySameTransport Decision = iota
	FallBackNextTransport
	GiveUp
)

func (d Decision) String() string {
	switch d {
	case RetrySameTransport:
		return "retry-same-transport"
	case FallBackNextTransport:
		return "fall-back-next-transport"
	case GiveUp:
		return "give-up"
	default:
		return "unknown"
	}
}

// State is where the connection stands when it asks for a decision
type State struct {
	Transport transporter.Kind

	// Retries already spent on Transport
	Attempt int

	LastErr error
}

type Policy interface {
	Decide(state State, spec *request.RequestSpec) (Decision, time.Duration)
}

// Exponential retries the current transport with a doubling delay until the
// request's attempt cap, then moves down the transport list, then gives up
type Exponential struct{}

func NewExponential() *Exponential {
	return &Exponential{}
}

func (e *Exponential) Decide(state State, spec *request.RequestSpec) (Decision, time.Duration) {
	if !spec.Reconnect() {
		return GiveUp, 0
	}

	max := spec.MaxReconnectAttempts()
	if max == request.Unbounded || state.Attempt < max {
		return RetrySameTransport, Delay(state.Attempt, spec.ReconnectDelay(), spec.MaxReconnectDelay())
	}

	if Next(spec, state.Transport) != 0 {
		return FallBackNextTransport, Delay(0, spec.ReconnectDelay(), spec.MaxReconnectDelay())
	}

	return GiveUp, 0
}

// Next returns the transport after current in the request's preference order, or
// zero when current is the last one
func Next(spec *request.RequestSpec, current transporter.Kind) transporter.Kind {
	transports := spec.Transports()
	for i, kind := range transports {
		if kind == current && i+1 < len(transports) {
			return transports[i+1]
		}
	}
	return 0
}

// Delay is base * 2^attempt, capped at max. It never decreases as attempt grows.
func Delay(attempt int, base time.Duration, max time.Duration) time.Duration {
	schedule := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	schedule.Reset()

	delay := schedule.NextBackOff()
	for i := 0; i < attempt && delay < max; i++ {
		delay = schedule.NextBackOff()
	}

	if delay > max {
		delay = max
	}
	return delay
}
