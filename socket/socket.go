/*
The socket package is the handle applications hold. A Socket wires a
negotiator, reconnect policy, dispatcher and state machine together behind a
small api:

	s := socket.New(logger)
	s.OnMessage(func(payload []byte) { ... }).
		OnError(func(err error) { ... })

	if err := s.Open(spec); err != nil { ... }
	s.Fire([]byte("PING"))
	s.Close()

Open never blocks on the network; the outcome arrives as an OPEN or CLOSE
event. Close blocks until the socket is fully closed, bounded by the shutdown
timeout. Handlers run on the socket's receive loop in registration order and
must not call Close; they can call CloseAsync instead.
*/
package socket

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"bastionzero.com/wasync/connection/dispatcher"
	"bastionzero.com/wasync/connection/event"
	"bastionzero.com/wasync/connection/negotiator"
	"bastionzero.com/wasync/connection/reconnect"
	"bastionzero.com/wasync/connection/request"
	"bastionzero.com/wasync/connection/statemachine"
	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/connection/transporter/transports"
	"bastionzero.com/wasync/logger"
	"bastionzero.com/wasync/telemetry"
)

const DefaultShutdownTimeout = 10 * time.Second

type options struct {
	table           transporter.Table
	policy          reconnect.Policy
	clock           clock.Clock
	metrics         *telemetry.Metrics
	shutdownTimeout time.Duration
}

type Option func(*options)

// WithTransports replaces the kind to transporter lookup table
func WithTransports(table transporter.Table) Option {
	return func(o *options) {
		o.table = table
	}
}

func WithPolicy(policy reconnect.Policy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

func WithClock(clock clock.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = timeout
	}
}

type Socket struct {
	id     string
	logger *logger.Logger

	dispatcher *dispatcher.Dispatcher
	machine    *statemachine.Machine

	shutdownTimeout time.Duration
}

func New(logger *logger.Logger, opts ...Option) *Socket {
	o := options{
		table:           transports.Default(),
		policy:          reconnect.NewExponential(),
		clock:           clock.New(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New().String()
	socketLogger := logger.GetSocketLogger(id)

	d := dispatcher.New(socketLogger.GetComponentLogger("Dispatcher"))
	n := negotiator.New(socketLogger.GetComponentLogger("Negotiator"), o.table, o.metrics)
	m := statemachine.New(socketLogger.GetComponentLogger("Connection"), n, o.policy, d, o.clock, o.metrics)

	return &Socket{
		id:              id,
		logger:          socketLogger,
		dispatcher:      d,
		machine:         m,
		shutdownTimeout: o.shutdownTimeout,
	}
}

func (s *Socket) ID() string {
	return s.id
}

// On registers handler for every event of type tag. Use event.AnyError to see
// every event that carries an error.
func (s *Socket) On(tag event.Type, handler event.Handler) *Socket {
	s.dispatcher.Register(tag, handler)
	return s
}

func (s *Socket) OnOpen(handler func(kind transporter.Kind)) *Socket {
	return s.On(event.Open, func(evt event.Event) {
		handler(evt.Transport)
	})
}

func (s *Socket) OnReopened(handler func(kind transporter.Kind)) *Socket {
	return s.On(event.Reopened, func(evt event.Event) {
		handler(evt.Transport)
	})
}

func (s *Socket) OnMessage(handler func(payload []byte)) *Socket {
	return s.On(event.Message, func(evt event.Event) {
		handler(evt.Payload)
	})
}

func (s *Socket) OnClose(handler func(reason string)) *Socket {
	return s.On(event.Close, func(evt event.Event) {
		handler(evt.Reason)
	})
}

// OnError registers a generic error handler. It sees the cause of every ERROR
// event as well as the error behind a CLOSE that was not asked for.
func (s *Socket) OnError(handler func(err error)) *Socket {
	return s.On(event.AnyError, func(evt event.Event) {
		handler(evt.Err)
	})
}

// Open starts connecting and returns straight away. It only fails if the
// socket has been opened (or closed) before.
func (s *Socket) Open(spec *request.RequestSpec) error {
	if spec == nil {
		return &request.ConfigError{Field: "spec", Reason: "a request spec is required"}
	}

	s.logger.Infof("Opening socket to %s with transports %v", spec.URI(), spec.Transports())
	return s.machine.Open(spec)
}

// Fire sends payload over the connected transport. A nil error means the
// payload was accepted for sending; a *statemachine.NotConnectedError means
// there is no connection right now and the payload was dropped.
func (s *Socket) Fire(payload []byte) error {
	return s.machine.Fire(payload)
}

func (s *Socket) Close() error {
	return s.machine.Close(s.shutdownTimeout)
}

// CloseAsync starts closing and returns immediately; completion is reported
// with a CLOSE event and by Done
func (s *Socket) CloseAsync() {
	if s.machine.State() == statemachine.Idle {
		s.machine.Close(s.shutdownTimeout)
		return
	}
	s.machine.Stop()
}

func (s *Socket) Done() <-chan struct{} {
	return s.machine.Done()
}

func (s *Socket) Status() Status {
	snapshot := s.machine.Snapshot()
	return statusOf(snapshot.State, snapshot.Transport != 0, snapshot.Reopened)
}

// Transport is the kind currently (or last) in use, zero before the first connection
func (s *Socket) Transport() transporter.Kind {
	return s.machine.Transport()
}
