package monitor

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// event is the wire shape pushed to connected monitor clients: a tagged
// union keyed by Type. The endpoint is one-directional — it never
// accepts commands from a client.
type event struct {
	Type       string       `json:"type"`
	State      *StateChanged `json:"state,omitempty"`
	Prediction *Prediction   `json:"prediction,omitempty"`
	Perf       *PerfReport   `json:"perf,omitempty"`
}

// Server is a read-only websocket endpoint that rebroadcasts broker
// events as JSON to every connected client. There is no inbound command
// handling — this tool has nothing for a client to command.
type Server struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	listener net.Listener
	http     *http.Server
}

// NewServer creates a monitor server that will listen on the address
// passed to Start.
func NewServer(log *logrus.Entry) *Server {
	return &Server{
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start begins listening on addr and returns once the listener is ready.
// Serving happens on a background goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.http = &http.Server{Handler: mux}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Warn("monitor server stopped")
		}
	}()

	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("monitor websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	// Drain (and discard) anything the client sends, to notice
	// disconnects promptly.
	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// Run forwards every event from ch to all connected clients, until ch
// is closed.
func (s *Server) Run(ch <-chan interface{}) {
	for msg := range ch {
		s.broadcast(toEvent(msg))
	}
}

func toEvent(msg interface{}) event {
	switch v := msg.(type) {
	case StateChanged:
		return event{Type: "state", State: &v}
	case Prediction:
		return event{Type: "prediction", Prediction: &v}
	case PerfReport:
		return event{Type: "perf", Perf: &v}
	default:
		return event{Type: "unknown"}
	}
}

func (s *Server) broadcast(e event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.log.WithError(err).Debug("monitor client write failed")
		}
	}
}

// Close stops accepting new connections and closes all client sockets.
func (s *Server) Close() error {
	if s.http != nil {
		s.http.Close()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	return nil
}
