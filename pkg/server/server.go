// Package server exposes the HTTP surface: the websocket endpoint the chat
// router consumes connections from, and the read-only usage stats API for
// the presentation layer.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fmmr/plyglot/pkg/chat"
	"github.com/fmmr/plyglot/pkg/usage"
)

// Server mounts the chat and stats endpoints.
type Server struct {
	router   *chat.Router
	tracker  *usage.Tracker
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	log      zerolog.Logger
}

// New builds a server around the chat router and usage tracker.
func New(router *chat.Router, tracker *usage.Tracker) *Server {
	s := &Server{
		router:  router,
		tracker: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		mux: http.NewServeMux(),
		log: log.With().Str("component", "server").Logger(),
	}
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/api/usage-stats", s.handleUsageStats)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// Handler returns the server's mux for mounting or testing.
func (s *Server) Handler() http.Handler { return s.mux }

// BuildHTTPServer constructs the http.Server. Write timeouts do not affect
// websocket traffic because the upgrade hijacks the connection.
func (s *Server) BuildHTTPServer(addr string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", addr, port),
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", req.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	s.log.Debug().Str("remote", req.RemoteAddr).Msg("websocket upgraded")
	// Blocks for the lifetime of the connection; the handler goroutine is
	// the connection's read loop. Detach from the request context so an
	// in-flight provider call survives the disconnect.
	s.router.HandleConnection(context.Background(), conn)
}

func (s *Server) handleUsageStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.log.Debug().Msg("usage stats requested")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.tracker.Snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("stats write failed")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
