/*
The statemachine package owns the lifecycle of one logical connection across
transport swaps and reconnect attempts:

	IDLE -> NEGOTIATING -> CONNECTED -> RECONNECTING -> NEGOTIATING -> ...
	                               \-> CLOSING -> CLOSED

A single goroutine, the receive loop, drives every transition after Open. It is
the only writer of connection state and the only caller of the dispatcher, so
handlers always see events in the order they happened.
*/
package statemachine

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/tomb.v2"

	"bastionzero.com/wasync/connection/dispatcher"
	"bastionzero.com/wasync/connection/event"
	"bastionzero.com/wasync/connection/negotiator"
	"bastionzero.com/wasync/connection/reconnect"
	"bastionzero.com/wasync/connection/request"
	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/logger"
	"bastionzero.com/wasync/telemetry"
)

// connection is the mutable record for the transport currently in use
type connection struct {
	kind    transporter.Kind
	channel transporter.Transporter

	// retries spent on kind since it last delivered a frame
	attempt int
	lastErr error

	// true once the connection has been re-established at least once
	reopened bool
}

type Machine struct {
	tmb    tomb.Tomb
	logger *logger.Logger
	clock  clock.Clock

	negotiator *negotiator.Negotiator
	policy     reconnect.Policy
	dispatcher *dispatcher.Dispatcher
	metrics    *telemetry.Metrics

	spec *request.RequestSpec

	// guards state and conn for everyone outside the receive loop
	lock  sync.Mutex
	state State
	conn  *connection

	// serializes writes from concurrent Fire callers
	sendLock sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

func New(
	logger *logger.Logger,
	negotiator *negotiator.Negotiator,
	policy reconnect.Policy,
	dispatcher *dispatcher.Dispatcher,
	clock clock.Clock,
	metrics *telemetry.Metrics,
) *Machine {
	return &Machine{
		logger:     logger,
		clock:      clock,
		negotiator: negotiator,
		policy:     policy,
		dispatcher: dispatcher,
		metrics:    metrics,
		state:      Idle,
		closed:     make(chan struct{}),
	}
}

func (m *Machine) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.state
}

// Transport is the kind of the current (or last) connection, zero if none was made
func (m *Machine) Transport() transporter.Kind {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.conn == nil {
		return 0
	}
	return m.conn.kind
}

// Reopened reports whether the connection has been re-established after a drop
func (m *Machine) Reopened() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.conn != nil && m.conn.reopened
}

type Snapshot struct {
	State     State
	Transport transporter.Kind
	Reopened  bool
}

// Snapshot reads state, transport and reopened together
func (m *Machine) Snapshot() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()

	snapshot := Snapshot{State: m.state}
	if m.conn != nil {
		snapshot.Transport = m.conn.kind
		snapshot.Reopened = m.conn.reopened
	}
	return snapshot
}

// Done is closed once the machine reaches CLOSED
func (m *Machine) Done() <-chan struct{} {
	return m.closed
}

// Open starts negotiating in the background and returns immediately. Whether
// it worked is reported through OPEN or CLOSE events.
func (m *Machine) Open(spec *request.RequestSpec) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.state != Idle {
		return &AlreadyOpenError{State: m.state}
	}

	m.spec = spec
	m.state = Negotiating
	m.tmb.Go(m.run)

	return nil
}

// Fire writes payload through the connected transport. It fails immediately
// with a *NotConnectedError if there is none.
func (m *Machine) Fire(payload []byte) error {
	m.sendLock.Lock()
	defer m.sendLock.Unlock()

	m.lock.Lock()
	if m.state != Connected || m.conn == nil || m.conn.channel == nil {
		state := m.state
		m.lock.Unlock()
		return &NotConnectedError{State: state}
	}
	channel, kind := m.conn.channel, m.conn.kind
	m.lock.Unlock()

	if err := channel.Send(payload); err != nil {
		return &TransportIOError{Kind: kind, InnerErr: err}
	}

	m.metrics.FrameSent(kind)
	return nil
}

// Close tears the connection down from any state and blocks until CLOSED or
// until timeout has passed. Calling it again is a no-op. It must not be called
// from an event handler; use Stop there instead.
func (m *Machine) Close(timeout time.Duration) error {
	m.lock.Lock()
	switch m.state {
	case Closed:
		m.lock.Unlock()
		return nil
	case Idle:
		// no receive loop to hand this to
		m.state = Closing
		m.lock.Unlock()
		m.finish(event.ClientInitiated, nil)
		return nil
	}
	m.lock.Unlock()

	m.Stop()

	timer := m.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case <-m.closed:
		return nil
	case <-timer.C:
		m.logger.Errorf("timed out waiting for connection to close after %s", timeout)
		return &ShutdownTimeoutError{Timeout: timeout}
	}
}

// Stop asks the receive loop to close the connection without waiting for it
func (m *Machine) Stop() {
	m.tmb.Kill(errClientInitiated)
}

func (m *Machine) run() error {
	m.logger.Infof("Connection has started")
	defer m.logger.Infof("Connection has stopped")

	// Make a context and tie it in with our tomb so that closing cancels any
	// handshake or backoff we are waiting on
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.tmb.Dying():
			cancel()
		}
	}()

	channel, kind, err := m.negotiator.Negotiate(ctx, m.spec)
	if ctx.Err() != nil {
		if channel != nil {
			channel.Close(errClientInitiated)
		}
		m.finish(event.ClientInitiated, nil)
		return nil
	} else if err != nil {
		m.logger.Errorf("failed to open connection: %s", err)
		m.finish(event.NoViableTransport, err)
		return nil
	}

	m.connected(channel, kind)

	for {
		cause := m.stream(ctx)
		if ctx.Err() != nil {
			m.finish(event.ClientInitiated, nil)
			return nil
		}

		m.disconnected(cause)

		if err := m.reconnect(ctx); ctx.Err() != nil {
			m.finish(event.ClientInitiated, nil)
			return nil
		} else if err != nil {
			m.finish(event.ReconnectExhausted, m.lastErr())
			return nil
		}
	}
}

// stream forwards frames from the active channel until it drops, goes idle for
// too long, or ctx is cancelled
func (m *Machine) stream(ctx context.Context) error {
	channel, kind := m.conn.channel, m.conn.kind

	var idle <-chan time.Time
	timeout := m.spec.IdleTimeout()
	var timer *clock.Timer
	if timeout > 0 {
		timer = m.clock.Timer(timeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-channel.Inbound():
			if !ok {
				cause := channel.Err()
				if cause == nil {
					cause = &transporter.ClosedError{Kind: kind}
				}
				return &TransportIOError{Kind: kind, InnerErr: cause}
			}

			// a frame means this transport is healthy again
			m.lock.Lock()
			m.conn.attempt = 0
			m.lock.Unlock()

			m.metrics.FrameReceived(kind)
			m.dispatcher.Dispatch(event.NewMessage(kind, frame))

			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(timeout)
			}
		case <-idle:
			return &IdleTimeoutError{Kind: kind, Timeout: timeout}
		}
	}
}

func (m *Machine) connected(channel transporter.Transporter, kind transporter.Kind) {
	m.lock.Lock()
	reopened := m.conn != nil
	if m.conn == nil {
		m.conn = &connection{}
	}
	m.conn.kind = kind
	m.conn.channel = channel
	m.conn.reopened = reopened
	m.state = Connected
	m.lock.Unlock()

	m.metrics.Connected()

	if reopened {
		m.logger.Infof("Connection re-established over %s", kind)
		m.dispatcher.Dispatch(event.NewReopened(kind))
	} else {
		m.logger.Infof("Connection established over %s", kind)
		m.dispatcher.Dispatch(event.NewOpen(kind))
	}
}

// disconnected releases a channel that dropped and reports why
func (m *Machine) disconnected(cause error) {
	m.lock.Lock()
	m.state = Reconnecting
	channel, kind := m.conn.channel, m.conn.kind
	m.conn.channel = nil
	m.conn.lastErr = cause
	m.lock.Unlock()

	m.logger.Infof("Lost %s connection: %s", kind, cause)
	m.metrics.Disconnected()

	channel.Close(cause)
	m.dispatcher.Dispatch(event.NewError(kind, cause))
}

// reconnect consults the policy until a transport connects or the policy gives up
func (m *Machine) reconnect(ctx context.Context) error {
	for {
		m.lock.Lock()
		state := reconnect.State{
			Transport: m.conn.kind,
			Attempt:   m.conn.attempt,
			LastErr:   m.conn.lastErr,
		}
		m.lock.Unlock()

		decision, delay := m.policy.Decide(state, m.spec)
		m.metrics.ReconnectDecision(decision.String())

		next, attempt := state.Transport, state.Attempt
		switch decision {
		case reconnect.RetrySameTransport:
			attempt++
		case reconnect.FallBackNextTransport:
			if next = reconnect.Next(m.spec, state.Transport); next == 0 {
				return errReconnectExhausted
			}
			attempt = 0
		default:
			m.logger.Infof("Not reconnecting after %d attempts on %s", state.Attempt, state.Transport)
			return errReconnectExhausted
		}

		m.lock.Lock()
		m.conn.kind = next
		m.conn.attempt = attempt
		m.lock.Unlock()

		m.logger.Infof("Reconnecting over %s in %s (%s, attempt %d)", next, delay, decision, attempt)
		if err := m.wait(ctx, delay); err != nil {
			return err
		}

		m.setState(Negotiating)
		channel, kind, err := m.negotiator.NegotiateFrom(ctx, m.spec, []transporter.Kind{next})
		if ctx.Err() != nil {
			if channel != nil {
				channel.Close(errClientInitiated)
			}
			return ctx.Err()
		} else if err != nil {
			m.logger.Infof("Failed to reconnect over %s: %s", next, err)

			m.lock.Lock()
			m.state = Reconnecting
			m.conn.lastErr = err
			m.lock.Unlock()
			continue
		}

		m.connected(channel, kind)
		return nil
	}
}

func (m *Machine) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := m.clock.Timer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// finish moves through CLOSING to CLOSED, releasing whatever channel is still
// open before the CLOSE event goes out
func (m *Machine) finish(reason string, cause error) {
	m.lock.Lock()
	wasConnected := m.state == Connected
	m.state = Closing

	var kind transporter.Kind
	var channel transporter.Transporter
	if m.conn != nil {
		kind, channel = m.conn.kind, m.conn.channel
		m.conn.channel = nil
	}
	m.lock.Unlock()

	if channel != nil {
		channel.Close(errClientInitiated)
	}
	if wasConnected {
		m.metrics.Disconnected()
	}

	m.setState(Closed)
	m.logger.Infof("Connection closed: %s", reason)

	m.dispatcher.Dispatch(event.NewClose(kind, reason, cause))
	m.closeOnce.Do(func() { close(m.closed) })
}

func (m *Machine) lastErr() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.conn == nil {
		return nil
	}
	return m.conn.lastErr
}

func (m *Machine) setState(state State) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.state = state
}
