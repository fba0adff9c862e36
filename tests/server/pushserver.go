package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/logger"
)

const (
	frameBufferSize = 100
	writeTimeout    = time.Second
)

// PushServer serves every transport on a single uri, telling them apart by the
// websocket upgrade or the transport header. Anything POSTed (or written on a
// websocket) is recorded in Received and, if Reply returns something, pushed
// to every connected client.
type PushServer struct {
	logger *logger.Logger
	server *httptest.Server

	Url      string
	Received chan []byte

	// Reply maps what a client sent to what gets pushed back; nil means echo
	Reply func(message []byte) []byte

	lock        sync.Mutex
	disabled    map[transporter.Kind]bool
	subscribers map[*subscriber]bool
	polls       chan []byte
	connections map[transporter.Kind]int
}

type subscriber struct {
	kind   transporter.Kind
	frames chan []byte
	drop   chan struct{}
}

func NewPushServer(logger *logger.Logger, disabled ...transporter.Kind) *PushServer {
	p := &PushServer{
		logger:      logger,
		Received:    make(chan []byte, frameBufferSize),
		disabled:    make(map[transporter.Kind]bool),
		subscribers: make(map[*subscriber]bool),
		polls:       make(chan []byte, frameBufferSize),
		connections: make(map[transporter.Kind]int),
	}

	for _, kind := range disabled {
		p.disabled[kind] = true
	}

	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	p.Url = p.server.URL

	return p
}

func (p *PushServer) Close() {
	p.DropAll()
	p.server.CloseClientConnections()
	p.server.Close()
}

// Connections is how many handshakes kind has accepted
func (p *PushServer) Connections(kind transporter.Kind) int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.connections[kind]
}

// Push sends message to every connected client
func (p *PushServer) Push(message []byte) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for sub := range p.subscribers {
		select {
		case sub.frames <- message:
		default:
			p.logger.Errorf("dropping frame for slow %s subscriber", sub.kind)
		}
	}

	if p.connections[transporter.LongPolling] > 0 {
		select {
		case p.polls <- message:
		default:
		}
	}
}

// DropAll ends every open stream from the server side
func (p *PushServer) DropAll() {
	p.lock.Lock()
	defer p.lock.Unlock()

	for sub := range p.subscribers {
		close(sub.drop)
		delete(p.subscribers, sub)
	}
}

func (p *PushServer) serve(w http.ResponseWriter, r *http.Request) {
	kind := transporter.SSE
	if websocket.IsWebSocketUpgrade(r) {
		kind = transporter.WebSocket
	} else if parsed, err := transporter.ParseKind(r.Header.Get(transporter.TransportHeader)); err == nil {
		kind = parsed
	}

	p.lock.Lock()
	disabled := p.disabled[kind]
	p.lock.Unlock()

	if disabled {
		http.NotFound(w, r)
		return
	}

	// a POST with a body is a client sending; long-polls may be empty POSTs
	if r.Method == http.MethodPost && (kind != transporter.LongPolling || r.ContentLength > 0) {
		p.receive(w, r)
		return
	}

	switch kind {
	case transporter.WebSocket:
		p.serveWebsocket(w, r)
	case transporter.LongPolling:
		p.servePoll(w, r)
	default:
		p.serveStream(w, r, kind)
	}
}

func (p *PushServer) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.record(body)
	w.WriteHeader(http.StatusOK)
}

func (p *PushServer) record(message []byte) {
	select {
	case p.Received <- message:
	default:
	}

	reply := message
	if p.Reply != nil {
		reply = p.Reply(message)
	}
	if reply != nil {
		p.Push(reply)
	}
}

func (p *PushServer) subscribe(kind transporter.Kind) *subscriber {
	sub := &subscriber{
		kind:   kind,
		frames: make(chan []byte, frameBufferSize),
		drop:   make(chan struct{}),
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.subscribers[sub] = true
	p.connections[kind]++
	return sub
}

func (p *PushServer) unsubscribe(sub *subscriber) {
	p.lock.Lock()
	defer p.lock.Unlock()

	delete(p.subscribers, sub)
}

func (p *PushServer) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Errorf("failed to upgrade websocket: %s", err)
		return
	}
	defer conn.Close()

	sub := p.subscribe(transporter.WebSocket)
	defer p.unsubscribe(sub)

	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p.record(message)
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.drop:
			message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeTimeout))
			return
		case frame := <-sub.frames:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				p.logger.Errorf("failed to write to websocket connection: %s", err)
				return
			}
		}
	}
}

func (p *PushServer) serveStream(w http.ResponseWriter, r *http.Request, kind transporter.Kind) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := p.subscribe(kind)
	defer p.unsubscribe(sub)

	if kind == transporter.SSE {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain")
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.drop:
			return
		case frame := <-sub.frames:
			if kind == transporter.SSE {
				fmt.Fprintf(w, "data: %s\n\n", frame)
			} else {
				w.Write(frame)
			}
			flusher.Flush()
		}
	}
}

func (p *PushServer) servePoll(w http.ResponseWriter, r *http.Request) {
	p.lock.Lock()
	p.connections[transporter.LongPolling]++
	p.lock.Unlock()

	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	select {
	case <-r.Context().Done():
	case frame := <-p.polls:
		w.Write(frame)
	}
}
