/*
Package admin serves the operator HTTP endpoints of the chat server.

	GET /healthz   liveness check, answers "ok"
	GET /metrics   prometheus exposition
	GET /sessions  JSON array of the registered sessions
*/
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/omochice/presence-chat/internal/chat"
	"github.com/omochice/presence-chat/internal/metrics"
	"github.com/omochice/presence-chat/internal/pkg/logx"
)

const shutdownTimeout = 5 * time.Second

// SessionSource lists the registered sessions.
type SessionSource interface {
	Snapshot() []chat.SessionView
}

// Router returns the admin routes. allowedOrigins enables CORS for browser
// dashboards; an empty list leaves CORS headers off.
func Router(sessions SessionSource, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	if len(allowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		})
		r.Use(c.Handler)
	}

	r.Use(middleware.RequestID)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/sessions", handleSessions(sessions))

	return r
}

func handleSessions(sessions SessionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(sessions.Snapshot())
		if err != nil {
			logx.Error(err, "Error encoding sessions")
			http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		_, _ = w.Write(body)
	}
}

// Server runs the admin router on its own listener.
type Server struct {
	address  string
	handler  http.Handler
	listener net.Listener
	server   *http.Server
	logger   zerolog.Logger
}

// New creates an admin server.
func New(address string, sessions SessionSource, allowedOrigins []string) *Server {
	return &Server{
		address: address,
		handler: Router(sessions, allowedOrigins),
		logger:  logx.Component("admin"),
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start admin server: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Admin server listening")
	return nil
}

// Serve handles requests until Stop is called, then returns nil.
func (s *Server) Serve() error {
	if s.server == nil {
		return errors.New("admin: Serve called before Listen")
	}
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Admin shutdown error")
	}
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
