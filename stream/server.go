package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot/simulation"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 32
	writeWait        = 5 * time.Second
)

type outboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithCheckOrigin overrides the websocket origin check, which allows every origin by default.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// Server publishes RoundStatus values on /ws/status and the latest one on /status.
type Server struct {
	hub      *Hub[simulation.RoundStatus]
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.RWMutex
	latest *simulation.RoundStatus
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		hub:      NewHub[simulation.RoundStatus](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe records and broadcasts a round; it matches simulation.WithObserver.
func (s *Server) Observe(status simulation.RoundStatus) {
	s.mu.Lock()
	s.latest = &status
	s.mu.Unlock()

	s.hub.Broadcast(status)
}

// Subscribers returns the number of connected stream clients.
func (s *Server) Subscribers() int {
	return s.hub.Len()
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws/status", s.handleStatusStream)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(outboundMessage{Type: "status", Data: latest})
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(subscriberBuffer)
	defer s.hub.Unsubscribe(sub)

	// the client never sends; reading only surfaces the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case status, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage{Type: "status", Data: status}); err != nil {
				s.logger.Debug("websocket write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
