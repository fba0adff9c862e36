/*
The streaming package reads one never ending chunked response. Every read that
returns data becomes one frame, so frame boundaries follow whatever the server
flushed.
*/
package streaming

import (
	"context"
	"io"
	"net/http"

	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/connection/transporter/httpbase"
	"bastionzero.com/wasync/logger"
)

const readBufferSize = 32 * 1024

type Streaming struct {
	*httpbase.Base
}

func New(logger *logger.Logger) transporter.Transporter {
	return &Streaming{
		Base: httpbase.New(logger, transporter.Streaming),
	}
}

func (s *Streaming) Dial(ctx context.Context, target transporter.Target) error {
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}

	response, err := s.Handshake(ctx, target, method, "")
	if err != nil {
		return err
	}

	s.Start(func() error {
		defer response.Body.Close()
		return s.read(response.Body)
	})

	return nil
}

func (s *Streaming) read(body io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])

			if !s.Push(frame) {
				return nil
			}
		}

		if err != nil {
			return err
		}
	}
}
