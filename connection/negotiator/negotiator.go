/*
The negotiator package picks the transport a connection will use. It walks the
candidates strictly in the order the caller declared, tries each one exactly
once and settles on the first handshake that succeeds. There is no capability
detection beyond trying.
*/
package negotiator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"bastionzero.com/wasync/connection/request"
	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/logger"
	"bastionzero.com/wasync/telemetry"
)

type Negotiator struct {
	logger  *logger.Logger
	table   transporter.Table
	metrics *telemetry.Metrics
}

func New(logger *logger.Logger, table transporter.Table, metrics *telemetry.Metrics) *Negotiator {
	return &Negotiator{
		logger:  logger,
		table:   table,
		metrics: metrics,
	}
}

// Negotiate runs a full pass over the request's transport preference list
func (n *Negotiator) Negotiate(ctx context.Context, spec *request.RequestSpec) (transporter.Transporter, transporter.Kind, error) {
	return n.NegotiateFrom(ctx, spec, spec.Transports())
}

// NegotiateFrom runs one pass over kinds. Every kind is tried at most once and
// a transporter that fails its handshake is closed before the next is tried.
func (n *Negotiator) NegotiateFrom(ctx context.Context, spec *request.RequestSpec, kinds []transporter.Kind) (transporter.Transporter, transporter.Kind, error) {
	var errs error
	tried := make(map[transporter.Kind]bool, len(kinds))
	target := spec.Target()

	for _, kind := range kinds {
		if tried[kind] {
			continue
		}
		tried[kind] = true

		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		channel, err := n.table.New(kind, n.logger)
		if err != nil {
			n.logger.Infof("Skipping %s: %s", kind, err)
			n.metrics.Negotiation(kind, telemetry.NegotiationUnsupported)
			errs = multierr.Append(errs, err)
			continue
		}

		n.logger.Infof("Attempting %s handshake with %s", kind, target.Url)
		if err := n.dial(ctx, channel, target, spec); err != nil {
			channel.Close(err)

			// we were told to stop, this isn't the transport's fault
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}

			var unsupported *transporter.UnsupportedError
			if errors.As(err, &unsupported) {
				n.logger.Infof("Server does not support %s, falling back: %s", kind, err)
				n.metrics.Negotiation(kind, telemetry.NegotiationUnsupported)
			} else {
				n.logger.Infof("%s handshake failed, falling back: %s", kind, err)
				n.metrics.Negotiation(kind, telemetry.NegotiationFailure)
			}

			errs = multierr.Append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}

		n.logger.Infof("Negotiated %s transport", kind)
		n.metrics.Negotiation(kind, telemetry.NegotiationSuccess)
		return channel, kind, nil
	}

	return nil, 0, &NoViableTransportError{Tried: kinds, InnerErr: errs}
}

func (n *Negotiator) dial(ctx context.Context, channel transporter.Transporter, target transporter.Target, spec *request.RequestSpec) error {
	dialCtx, cancel := context.WithTimeout(ctx, spec.HandshakeTimeout())
	defer cancel()

	return channel.Dial(dialCtx, target)
}
