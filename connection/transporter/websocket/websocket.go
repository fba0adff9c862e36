/*
The websocket package is the full-duplex Transporter. It dials the target with a
websocket upgrade and ferries raw frames in both directions; anything above the
frame level is left to the caller.
*/
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"

	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/logger"
)

const (
	HttpsOnlyWebsocketScheme = "wss"
	HttpWebsocketScheme      = "ws"

	inboundBufferSize = 200
	closeWriteTimeout = time.Second
)

type Websocket struct {
	tmb    tomb.Tomb
	logger *logger.Logger
	client *gorilla.Conn

	// gorilla supports one concurrent writer
	sendLock sync.Mutex
	dialed   bool

	// Received messages
	inbound chan []byte
}

func New(logger *logger.Logger) transporter.Transporter {
	return &Websocket{
		logger:  logger,
		inbound: make(chan []byte, inboundBufferSize),
	}
}

func (w *Websocket) Kind() transporter.Kind {
	return transporter.WebSocket
}

func (w *Websocket) Close(reason error) {
	if !w.dialed {
		return
	}

	if w.tmb.Alive() {
		w.logger.Infof("Websocket connection closing because: %s", reason)

		w.tmb.Kill(reason)

		// politely tell the server before hanging up
		message := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
		w.client.WriteControl(gorilla.CloseMessage, message, time.Now().Add(closeWriteTimeout))
	} else {
		w.logger.Infof("Close was called while in a dying state")
	}

	// the server ending the stream leaves the socket open until we close it
	w.client.Close()
	w.tmb.Wait()
}

func (w *Websocket) Done() <-chan struct{} {
	return w.tmb.Dead()
}

func (w *Websocket) Err() error {
	if err := w.tmb.Err(); err != tomb.ErrStillAlive {
		return err
	}
	return nil
}

func (w *Websocket) Inbound() <-chan []byte {
	return w.inbound
}

func (w *Websocket) Send(message []byte) error {
	w.sendLock.Lock()
	defer w.sendLock.Unlock()

	if w.client == nil || !w.tmb.Alive() {
		return &transporter.NotDialedError{Kind: transporter.WebSocket}
	}
	return w.client.WriteMessage(gorilla.TextMessage, message)
}

func (w *Websocket) Dial(ctx context.Context, target transporter.Target) error {
	if w.dialed {
		return fmt.Errorf("websocket transporter has already been dialed")
	}

	// Make sure url scheme is correct
	connUrl := websocketUrl(target.Url)
	headers := transporter.CopyHeaders(target.Headers, transporter.WebSocket)

	client, response, err := gorilla.DefaultDialer.DialContext(ctx, connUrl.String(), headers)
	if response != nil && response.Body != nil {
		response.Body.Close()
	}
	if err != nil {
		if errors.Is(err, gorilla.ErrBadHandshake) && response != nil && transporter.IsUnsupportedStatus(response.StatusCode) {
			return &transporter.UnsupportedError{Kind: transporter.WebSocket, StatusCode: response.StatusCode}
		}
		return fmt.Errorf("error dialing websocket: %w", err)
	}

	w.client = client
	w.dialed = true
	w.tmb.Go(func() error {
		err := w.receive()

		// readers ask Err once inbound is closed, so it has to be set first
		w.tmb.Kill(err)
		close(w.inbound)
		return err
	})

	return nil
}

func (w *Websocket) receive() error {
	defer w.logger.Infof("Websocket connection closed")
	w.logger.Infof("Websocket connection started")

	for {
		// Read incoming message
		if _, rawMessage, err := w.client.ReadMessage(); !w.tmb.Alive() {
			return nil
		} else if err != nil {
			// Check if it's a clean exit
			if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				w.logger.Info("Websocket connection closed normally")
				return &transporter.ClosedError{Kind: transporter.WebSocket}
			}
			w.logger.Error(err)
			return err
		} else {
			select {
			case w.inbound <- rawMessage:
			case <-w.tmb.Dying():
				return nil
			}
		}
	}
}

func websocketUrl(target *url.URL) *url.URL {
	connUrl := *target
	switch connUrl.Scheme {
	case "https", HttpsOnlyWebsocketScheme:
		connUrl.Scheme = HttpsOnlyWebsocketScheme
	default:
		connUrl.Scheme = HttpWebsocketScheme
	}
	return &connUrl
}
