package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/omochice/presence-chat/internal/chat"
	"github.com/omochice/presence-chat/internal/metrics"
	"github.com/omochice/presence-chat/internal/pkg/logx"
)

const (
	// Path is the route clients upgrade on.
	Path = "/ws"

	transportName   = "ws"
	shutdownTimeout = 5 * time.Second
)

// Server accepts WebSocket connections on Path and hands each one to a
// chat.Handler.
type Server struct {
	address        string
	listener       net.Listener
	handler        chat.Handler
	originPatterns []string
	server         *http.Server
	quit           chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[*Conn]struct{}

	logger zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithOriginPatterns allows cross-origin upgrades from hosts matching the
// given patterns. Same-origin requests are always accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// New creates a WebSocket server that uses the provided handler.
func New(address string, handler chat.Handler, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		address: address,
		handler: handler,
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[*Conn]struct{}),
		logger:  logx.Component("ws"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP routes of the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Get(Path, s.handleWebSocket)
	return r
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	s.Attach(listener)
	s.logger.Info().Str("addr", listener.Addr().String()).Str("path", Path).Msg("WebSocket server listening")
	return nil
}

// Attach makes the server accept from l instead of binding its own socket.
func (s *Server) Attach(l net.Listener) {
	s.listener = l
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Start binds and then serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Stop is called, then returns nil.
func (s *Server) Serve() error {
	if s.server == nil {
		return errors.New("ws: Serve called before Listen")
	}
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down, closes every upgraded connection, and
// waits for the handlers to return. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.cancel()

		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("HTTP shutdown error")
			}
		}

		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		s.logger.Info().Msg("WebSocket server stopped")
	})
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		metrics.AcceptErrors.WithLabelValues(transportName).Inc()
		s.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to accept WebSocket connection")
		return
	}

	c := NewConnWithAddr(wsConn, r.RemoteAddr)

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		_ = wsConn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	default:
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.TotalConnections.WithLabelValues(transportName).Inc()
	metrics.ActiveConnections.WithLabelValues(transportName).Inc()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		metrics.ActiveConnections.WithLabelValues(transportName).Dec()
		s.wg.Done()
	}()

	s.handler.Serve(s.ctx, c)
}
