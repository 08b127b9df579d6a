// Package health serves acsd's status/healthz surface and a live
// websocket stream of the events acsd broadcasts, following the
// same "Start(port)/Stop()" server lifecycle as pkg/metrics.
package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/acs-wifi/acsd/pkg/acs"
	"github.com/acs-wifi/acsd/pkg/logx"
)

// StatusProvider is consulted for the current /status response. acsd's
// daemon implements this over its single controller instance.
type StatusProvider interface {
	State() acs.State
	CurrentChannel() (chanNum int, ok bool)
}

// Server serves /healthz, /status, and /events (websocket).
type Server struct {
	logger   *logx.Logger
	provider StatusProvider
	srv      *http.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

// Event is broadcast to every connected /events subscriber.
type Event struct {
	Kind      string      `json:"kind"` // acsd broadcasts only "transition"
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewServer builds a health server backed by provider.
func NewServer(provider StatusProvider, logger *logx.Logger) *Server {
	s := &Server{
		logger:   logger,
		provider: provider,
		subs:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	s.srv = &http.Server{Handler: r}
	return s
}

// Start begins serving on addr (e.g. ":8120").
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health: server error", "error", err)
		}
	}()
	s.logger.Info("health: listening", "addr", addr)
	return nil
}

// Stop shuts the server down and closes every open subscriber connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	for conn := range s.subs {
		conn.Close()
	}
	s.subs = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.provider.State()
	ch, ok := s.provider.CurrentChannel()

	resp := map[string]interface{}{
		"state": state.String(),
	}
	if ok {
		resp["channel"] = ch
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("health: websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.subs[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subs, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// The connection is write-only from the server's side; block reading
	// so a client-initiated close is detected promptly.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends ev to every connected /events subscriber, dropping
// (and logging) any connection that fails to accept the write rather
// than letting one slow subscriber stall the others.
func (s *Server) Broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.subs {
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debug("health: dropping unresponsive subscriber", "error", err)
			conn.Close()
			delete(s.subs, conn)
		}
	}
}
