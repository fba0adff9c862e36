/*
The longpolling package keeps exactly one request outstanding against the
server. Each response body is one frame; an empty body (or 204) is a poll that
timed out on the server and is simply reissued.
*/
package longpolling

import (
	"context"
	"io"
	"net/http"

	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/connection/transporter/httpbase"
	"bastionzero.com/wasync/logger"
)

type LongPolling struct {
	*httpbase.Base
	method string
}

func New(logger *logger.Logger) transporter.Transporter {
	return &LongPolling{
		Base: httpbase.New(logger, transporter.LongPolling),
	}
}

func (l *LongPolling) Dial(ctx context.Context, target transporter.Target) error {
	l.method = target.Method
	if l.method == "" {
		l.method = http.MethodGet
	}

	// the first poll doubles as the handshake
	response, err := l.Handshake(ctx, target, l.method, "")
	if err != nil {
		return err
	}

	l.Start(func() error {
		return l.poll(response)
	})

	return nil
}

func (l *LongPolling) poll(response *http.Response) error {
	for {
		frame, err := io.ReadAll(response.Body)
		response.Body.Close()
		if err != nil {
			return err
		}

		if len(frame) > 0 {
			if !l.Push(frame) {
				return nil
			}
		}

		if !l.Alive() {
			return nil
		}

		if response, err = l.Stream().Do(l.Context(), l.method, nil); err != nil {
			return err
		}
	}
}
