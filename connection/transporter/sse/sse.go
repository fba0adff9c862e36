/*
The sse package reads a text/event-stream response and turns every dispatched
server-sent event into one frame. Only the data field is forwarded; event, id
and retry fields are parsed and ignored.
*/
package sse

import (
	"bufio"
	"context"
	"mime"
	"net/http"
	"strings"

	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/connection/transporter/httpbase"
	"bastionzero.com/wasync/logger"
)

const (
	EventStreamContentType = "text/event-stream"

	// events larger than this are a protocol error
	maxEventSize = 1 << 20
)

type SSE struct {
	*httpbase.Base
}

func New(logger *logger.Logger) transporter.Transporter {
	return &SSE{
		Base: httpbase.New(logger, transporter.SSE),
	}
}

func (s *SSE) Dial(ctx context.Context, target transporter.Target) error {
	// an event source is always a GET, whatever the request method is
	response, err := s.Handshake(ctx, target, http.MethodGet, EventStreamContentType)
	if err != nil {
		return err
	}

	mediaType, _, _ := mime.ParseMediaType(response.Header.Get("Content-Type"))
	if mediaType != EventStreamContentType {
		response.Body.Close()
		return &transporter.UnsupportedError{
			Kind:   transporter.SSE,
			Reason: "server answered with content type " + response.Header.Get("Content-Type"),
		}
	}

	s.Start(func() error {
		defer response.Body.Close()
		return s.read(bufio.NewScanner(response.Body))
	})

	return nil
}

func (s *SSE) read(scanner *bufio.Scanner) error {
	scanner.Buffer(make([]byte, 4096), maxEventSize)

	var data []string
	var hasData bool

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		// a blank line dispatches whatever we have accumulated
		if line == "" {
			if hasData {
				if !s.Push([]byte(strings.Join(data, "\n"))) {
					return nil
				}
			}
			data = data[:0]
			hasData = false
			continue
		}

		// comments are commonly used as keep alives
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseField(line)
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event", "id", "retry":
		default:
			s.Logger().Tracef("Ignoring unknown event stream field %q", field)
		}
	}

	return scanner.Err()
}

func parseField(line string) (string, string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
