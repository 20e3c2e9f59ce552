// Package server assembles the chat server: session engine, inactivity
// monitor, TCP and WebSocket acceptors, and the admin endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochice/presence-chat/internal/admin"
	"github.com/omochice/presence-chat/internal/chat"
	"github.com/omochice/presence-chat/internal/config"
	"github.com/omochice/presence-chat/internal/pkg/logx"
	"github.com/omochice/presence-chat/internal/transport/tcp"
	"github.com/omochice/presence-chat/internal/transport/ws"
)

// Addresses are the listen addresses of the server. WS and Admin may be
// empty to disable those listeners. When WS equals TCP both transports
// share one port.
type Addresses struct {
	TCP   string
	WS    string
	Admin string
}

// AddressesFrom derives listen addresses from the configured ports.
func AddressesFrom(cfg *config.AppConfig) Addresses {
	addrs := Addresses{TCP: portAddr(cfg.Server.Port)}
	if cfg.Server.WSPort != 0 {
		addrs.WS = portAddr(cfg.Server.WSPort)
	}
	if cfg.Server.AdminPort != 0 {
		addrs.Admin = portAddr(cfg.Server.AdminPort)
	}
	return addrs
}

func portAddr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}

// Server is the whole chat server process.
type Server struct {
	addrs Addresses

	registry   *chat.Registry
	dispatcher *chat.Dispatcher
	monitor    *chat.Monitor

	tcp   *tcp.Server
	ws    *ws.Server
	admin *admin.Server
	mux   *portMux

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New builds a server from cfg. Nothing is bound until Listen.
func New(cfg *config.AppConfig, addrs Addresses) *Server {
	s := cfg.Session

	registry := chat.NewRegistry(chat.WithMaxUsernameLength(s.MaxUsernameLength))
	router := chat.NewRouter(registry, s.EchoBroadcast)
	dispatcher := chat.NewDispatcher(registry, router, chat.Options{
		QueueSize:        s.OutboundQueue,
		WriteTimeout:     s.WriteTimeout,
		RequestRate:      s.RequestRate,
		RequestBurst:     s.RequestBurst,
		MaxMessageLength: s.MaxMessageLength,
	})

	srv := &Server{
		addrs:      addrs,
		registry:   registry,
		dispatcher: dispatcher,
		monitor:    chat.NewMonitor(registry, s.SweepInterval, s.InactivityTimeout),
		tcp:        tcp.New(addrs.TCP, dispatcher),
		logger:     logx.Component("server"),
	}
	if addrs.WS != "" {
		srv.ws = ws.New(addrs.WS, dispatcher, ws.WithOriginPatterns(cfg.Server.AllowedOrigins...))
	}
	if addrs.Admin != "" {
		srv.admin = admin.New(addrs.Admin, registry, cfg.Server.AllowedOrigins)
	}
	return srv
}

// Registry returns the session registry.
func (s *Server) Registry() *chat.Registry {
	return s.registry
}

// Listen binds every configured listener. On failure the ones already bound
// are closed again.
func (s *Server) Listen() (err error) {
	var closers []func()
	defer func() {
		if err != nil {
			for _, c := range closers {
				c()
			}
		}
	}()

	if s.ws != nil && s.addrs.WS == s.addrs.TCP {
		l, err := net.Listen("tcp", s.addrs.TCP)
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		closers = append(closers, func() { l.Close() })
		s.mux = newPortMux(l, s.logger)
		s.tcp.Attach(s.mux.tcp)
		s.ws.Attach(s.mux.http)
		s.logger.Info().Str("addr", l.Addr().String()).Msg("Serving TCP and WebSocket on one port")
	} else {
		if err := s.tcp.Listen(); err != nil {
			return err
		}
		closers = append(closers, s.tcp.Stop)
		if s.ws != nil {
			if err := s.ws.Listen(); err != nil {
				return err
			}
			closers = append(closers, s.ws.Stop)
		}
	}

	if s.admin != nil {
		if err := s.admin.Listen(); err != nil {
			return err
		}
	}
	return nil
}

// Run serves until ctx is cancelled or a listener fails, then shuts every
// component down. It returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitor.Run(monitorCtx)
	}()

	errCh := make(chan error, 3)
	serve := func(name string, fn func() error) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := fn(); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	if s.mux != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.mux.serve()
		}()
	}
	serve("tcp", s.tcp.Serve)
	if s.ws != nil {
		serve("ws", s.ws.Serve)
	}
	if s.admin != nil {
		serve("admin", s.admin.Serve)
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
		s.logger.Error().Err(runErr).Msg("Listener failed, shutting down")
	}

	s.tcp.Stop()
	if s.ws != nil {
		s.ws.Stop()
	}
	if s.mux != nil {
		_ = s.mux.close()
	}
	if s.admin != nil {
		s.admin.Stop()
	}
	stopMonitor()
	s.wg.Wait()

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	s.logger.Info().Int("sessions", s.registry.Len()).Msg("Server stopped")
	return runErr
}

// TCPAddr returns the bound TCP address.
func (s *Server) TCPAddr() string {
	return s.tcp.Addr()
}

// WSAddr returns the bound WebSocket address, or "" when disabled.
func (s *Server) WSAddr() string {
	if s.ws == nil {
		return ""
	}
	return s.ws.Addr()
}

// AdminAddr returns the bound admin address, or "" when disabled.
func (s *Server) AdminAddr() string {
	if s.admin == nil {
		return ""
	}
	return s.admin.Addr()
}
