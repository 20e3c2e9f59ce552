package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/omochice/presence-chat/internal/chat"
	"github.com/omochice/presence-chat/internal/metrics"
	"github.com/omochice/presence-chat/internal/pkg/logx"
)

const (
	acceptRetryInitial = 5 * time.Millisecond
	acceptRetryMax     = time.Second
	transportName      = "tcp"
)

// Server accepts TCP connections and hands each one to a chat.Handler.
type Server struct {
	address  string
	listener net.Listener
	handler  chat.Handler
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[*Conn]struct{}

	logger zerolog.Logger
}

// New creates a TCP server that uses the provided handler.
func New(address string, handler chat.Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address: address,
		handler: handler,
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[*Conn]struct{}),
		logger:  logx.Component("tcp"),
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = listener
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("TCP server listening")
	return nil
}

// Attach makes the server accept from l instead of binding its own socket.
func (s *Server) Attach(l net.Listener) {
	s.listener = l
}

// Start binds and then serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve runs the accept loop. It returns nil after Stop, and an error if the
// listener fails for any other reason.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("tcp: Serve called before Listen")
	}

	retry := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(acceptRetryInitial),
		backoff.WithMaxInterval(acceptRetryMax),
		backoff.WithMaxElapsedTime(0),
	)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping() {
				return nil
			}
			metrics.AcceptErrors.WithLabelValues(transportName).Inc()
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("tcp listener closed: %w", err)
			}

			delay := retry.NextBackOff()
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to accept TCP connection")
			select {
			case <-time.After(delay):
				continue
			case <-s.quit:
				return nil
			}
		}
		retry.Reset()

		s.track(NewConn(conn))
	}
}

// Stop closes the listener and every live connection, then waits for the
// handlers to return. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.cancel()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				s.logger.Debug().Err(err).Msg("Listener close error")
			}
		}

		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		s.logger.Info().Msg("TCP server stopped")
	})
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) stopping() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	if s.stopping() {
		s.mu.Unlock()
		_ = c.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.TotalConnections.WithLabelValues(transportName).Inc()
	metrics.ActiveConnections.WithLabelValues(transportName).Inc()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
			metrics.ActiveConnections.WithLabelValues(transportName).Dec()
		}()
		s.handler.Serve(s.ctx, c)
	}()
}
