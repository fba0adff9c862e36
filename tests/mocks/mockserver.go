package mocks

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockServer answers a fixed set of endpoints and remembers every request it saw
type MockServer struct {
	server *httptest.Server

	Url string

	lock     sync.Mutex
	requests map[string][]*http.Request
}

type MockHandler struct {
	Endpoint    string
	HandlerFunc http.HandlerFunc
}

// StatusHandler answers every request to endpoint with code
func StatusHandler(endpoint string, code int) MockHandler {
	return MockHandler{
		Endpoint: endpoint,
		HandlerFunc: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		},
	}
}

func NewMockServer(handlers ...MockHandler) *MockServer {
	m := &MockServer{
		requests: make(map[string][]*http.Request),
	}

	mux := http.NewServeMux()
	for _, handler := range handlers {
		handler := handler
		mux.HandleFunc(handler.Endpoint, func(w http.ResponseWriter, r *http.Request) {
			m.lock.Lock()
			m.requests[handler.Endpoint] = append(m.requests[handler.Endpoint], r.Clone(r.Context()))
			m.lock.Unlock()

			handler.HandlerFunc(w, r)
		})
	}

	m.server = httptest.NewServer(mux)
	m.Url = m.server.URL

	return m
}

// Requests returns what endpoint has been sent so far, oldest first
func (m *MockServer) Requests(endpoint string) []*http.Request {
	m.lock.Lock()
	defer m.lock.Unlock()

	requests := make([]*http.Request, len(m.requests[endpoint]))
	copy(requests, m.requests[endpoint])
	return requests
}

func (m *MockServer) Close() {
	m.server.CloseClientConnections()
	m.server.Close()
}
