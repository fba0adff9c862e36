/*
The httpbase package holds what the plain HTTP transporters (sse, long-polling
and streaming) have in common. None of them can write on the stream they read
from, so outbound messages are POSTed to the same uri and only the receive side
differs between them.
*/
package httpbase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gopkg.in/tomb.v2"

	"bastionzero.com/wasync/connection/httpclient"
	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/logger"
)

const (
	inboundBufferSize = 200
	sendTimeout       = 30 * time.Second
)

type Base struct {
	tmb    tomb.Tomb
	logger *logger.Logger
	kind   transporter.Kind

	// cancelled on Close, tears down any in flight request
	ctx    context.Context
	cancel context.CancelFunc

	stream *httpclient.HttpClient
	sender *httpclient.HttpClient
	dialed bool

	inbound chan []byte
}

func New(logger *logger.Logger, kind transporter.Kind) *Base {
	ctx, cancel := context.WithCancel(context.Background())
	return &Base{
		logger:  logger,
		kind:    kind,
		ctx:     ctx,
		cancel:  cancel,
		inbound: make(chan []byte, inboundBufferSize),
	}
}

func (b *Base) Kind() transporter.Kind {
	return b.kind
}

func (b *Base) Logger() *logger.Logger {
	return b.logger
}

func (b *Base) Inbound() <-chan []byte {
	return b.inbound
}

func (b *Base) Done() <-chan struct{} {
	return b.tmb.Dead()
}

func (b *Base) Err() error {
	if err := b.tmb.Err(); err != tomb.ErrStillAlive {
		return err
	}
	return nil
}

func (b *Base) Alive() bool {
	return b.tmb.Alive()
}

// Context lives until Close is called
func (b *Base) Context() context.Context {
	return b.ctx
}

func (b *Base) Stream() *httpclient.HttpClient {
	return b.stream
}

func (b *Base) Close(reason error) {
	if !b.dialed {
		b.cancel()
		return
	}

	if b.tmb.Alive() {
		b.logger.Infof("%s connection closing because: %s", b.kind, reason)

		b.tmb.Kill(reason)
		b.cancel()
		b.tmb.Wait()
	} else {
		b.cancel()
		b.logger.Infof("Close was called while in a dying state")
	}
}

func (b *Base) Send(message []byte) error {
	if b.sender == nil || !b.tmb.Alive() {
		return &transporter.NotDialedError{Kind: b.kind}
	}

	ctx, cancel := context.WithTimeout(b.ctx, sendTimeout)
	defer cancel()

	response, err := b.sender.Post(ctx, bytes.NewReader(message))
	if err != nil {
		return fmt.Errorf("failed to send message over %s: %w", b.kind, err)
	}
	io.Copy(io.Discard, response.Body)
	response.Body.Close()

	return nil
}

// Handshake opens the first request against the target. The returned response
// body is readable until Close. Failures that mean the server does not offer
// this transport come back as *transporter.UnsupportedError.
func (b *Base) Handshake(ctx context.Context, target transporter.Target, method string, accept string) (*http.Response, error) {
	if b.dialed {
		return nil, fmt.Errorf("%s transporter has already been dialed", b.kind)
	}

	headers := transporter.CopyHeaders(target.Headers, b.kind)
	if accept != "" {
		headers.Set("Accept", accept)
	}

	targetUrl := httpUrl(target.Url)

	stream, err := httpclient.New(b.logger, targetUrl, httpclient.HTTPOptions{Headers: headers})
	if err != nil {
		return nil, err
	}

	sender, err := httpclient.New(b.logger, targetUrl, httpclient.HTTPOptions{
		Headers: transporter.CopyHeaders(target.Headers, b.kind),
		Timeout: sendTimeout,
	})
	if err != nil {
		return nil, err
	}

	response, err := stream.Open(ctx, b.ctx, method)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && transporter.IsUnsupportedStatus(statusErr.StatusCode) {
			return nil, &transporter.UnsupportedError{Kind: b.kind, StatusCode: statusErr.StatusCode}
		}
		return nil, fmt.Errorf("error dialing %s: %w", b.kind, err)
	}

	b.stream = stream
	b.sender = sender
	return response, nil
}

// Start marks the transporter as dialed and runs receive until it returns
func (b *Base) Start(receive func() error) {
	b.dialed = true
	b.tmb.Go(func() error {
		b.logger.Infof("%s connection started", b.kind)

		err := b.settle(receive())

		// readers ask Err once inbound is closed, so it has to be set first
		b.tmb.Kill(err)
		close(b.inbound)

		b.logger.Infof("%s connection closed", b.kind)
		return err
	})
}

func (b *Base) settle(err error) error {
	if !b.tmb.Alive() {
		return nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		b.logger.Error(err)
		return err
	}
	return &transporter.ClosedError{Kind: b.kind}
}

// Push hands one frame to the reader. It returns false once the transporter
// is dying and the frame was dropped.
func (b *Base) Push(frame []byte) bool {
	select {
	case b.inbound <- frame:
		return true
	case <-b.tmb.Dying():
		return false
	}
}

func httpUrl(target *url.URL) string {
	connUrl := *target
	switch connUrl.Scheme {
	case "wss":
		connUrl.Scheme = "https"
	case "ws":
		connUrl.Scheme = "http"
	}
	return connUrl.String()
}
