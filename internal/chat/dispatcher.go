package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/omochice/presence-chat/internal/metrics"
	"github.com/omochice/presence-chat/internal/pkg/logx"
	"github.com/omochice/presence-chat/pkg/protocol"
)

// Options tunes per-connection behavior of a Dispatcher.
type Options struct {
	// QueueSize is the capacity of each connection's outbound queue.
	QueueSize int
	// WriteTimeout bounds a single write to the client. Zero disables it.
	WriteTimeout time.Duration
	// RequestRate is the sustained requests per second allowed per
	// connection. Zero disables rate limiting.
	RequestRate float64
	// RequestBurst is the number of requests allowed in a burst.
	RequestBurst int
	// MaxMessageLength is the longest accepted message content, in bytes.
	MaxMessageLength int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		QueueSize:        256,
		WriteTimeout:     10 * time.Second,
		RequestRate:      50,
		RequestBurst:     100,
		MaxMessageLength: 4096,
	}
}

type connPhase int

const (
	phaseAwaitingRegistration connPhase = iota
	phaseActive
	phaseClosed
)

// connState is the dispatcher's view of one connection.
type connState struct {
	phase    connPhase
	username string
	ip       string
	peer     *Peer
}

// Dispatcher runs the request loop of every connection. It implements the
// transports' handler interface.
type Dispatcher struct {
	registry *Registry
	router   *Router
	opts     Options
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher serving registry through router.
func NewDispatcher(registry *Registry, router *Router, opts Options) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		router:   router,
		opts:     opts,
		logger:   logx.Component("dispatcher"),
	}
}

// Serve handles conn until it is closed by either side or ctx is cancelled.
// On return the connection is closed and any session it owned is removed.
func (d *Dispatcher) Serve(ctx context.Context, conn Conn) {
	peer := NewPeer(conn, d.opts.QueueSize, d.opts.WriteTimeout, d.logger)
	peer.Start()

	cs := &connState{
		phase: phaseAwaitingRegistration,
		ip:    hostOf(conn.RemoteAddr()),
		peer:  peer,
	}

	defer func() {
		cs.phase = phaseClosed
		if name, ok := d.registry.RemoveByPeer(peer); ok {
			peer.logger.Info().Str("username", name).Msg("Client disconnected")
		}
		peer.Close()
		peer.Wait()
	}()

	// Unblock Read when the server shuts down.
	go func() {
		select {
		case <-ctx.Done():
			peer.Close()
		case <-peer.Done():
		}
	}()

	var limiter *rate.Limiter
	if d.opts.RequestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.opts.RequestRate), d.opts.RequestBurst)
	}

	peer.logger.Debug().Msg("Connection opened")

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				peer.logger.Debug().Err(err).Msg("Connection closed")
			} else {
				peer.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}

		req, err := protocol.DecodeRequest(data)
		if err != nil {
			metrics.ProtocolErrors.Inc()
			peer.logger.Warn().Err(err).Msg("Closing connection on malformed request")
			return
		}

		start := time.Now()
		var resp *protocol.Response
		if limiter != nil && !limiter.Allow() {
			resp = errorResponse(req.Operation, ErrRateLimited)
		} else {
			resp = d.handle(cs, req)
		}
		d.observe(req.Operation, resp.StatusCode, time.Since(start))

		peer.logger.Debug().
			Str("operation", req.Operation.String()).
			Str("status", resp.StatusCode.String()).
			Str("username", cs.username).
			Msg("Request handled")

		out, err := resp.Encode()
		if err != nil {
			peer.logger.Error().Err(err).Msg("Failed to encode response")
			return
		}
		if !peer.Send(ctx, out) {
			return
		}
	}
}

func (d *Dispatcher) handle(cs *connState, req *protocol.Request) *protocol.Response {
	switch req.Operation {
	case protocol.OperationRegisterUser,
		protocol.OperationUpdateStatus,
		protocol.OperationGetUsers,
		protocol.OperationSendMessage:
	default:
		return errorResponse(req.Operation, ErrUnknownOperation)
	}

	if cs.phase != phaseActive {
		if req.Operation != protocol.OperationRegisterUser {
			return errorResponse(req.Operation, ErrNotRegistered)
		}
		return d.handleRegister(cs, req)
	}

	if req.Operation != protocol.OperationUpdateStatus {
		d.registry.Touch(cs.username)
	}

	switch req.Operation {
	case protocol.OperationRegisterUser:
		return errorResponse(req.Operation, ErrAlreadyRegistered)
	case protocol.OperationUpdateStatus:
		return d.handleUpdateStatus(cs, req)
	case protocol.OperationGetUsers:
		return d.handleGetUsers(req)
	default:
		return d.handleSendMessage(cs, req)
	}
}

func (d *Dispatcher) handleRegister(cs *connState, req *protocol.Request) *protocol.Response {
	var username string
	if req.RegisterUser != nil {
		username = req.RegisterUser.Username
	}

	if err := d.registry.Register(username, cs.ip, cs.peer); err != nil {
		cs.peer.logger.Info().Err(err).Str("username", username).Msg("Registration rejected")
		return errorResponse(req.Operation, err)
	}

	cs.phase = phaseActive
	cs.username = username
	return okResponse(req.Operation, "registered")
}

func (d *Dispatcher) handleUpdateStatus(cs *connState, req *protocol.Request) *protocol.Response {
	if req.UpdateStatus == nil {
		return errorResponse(req.Operation, ErrInvalidStatus)
	}

	target := req.UpdateStatus.Username
	if target == "" {
		target = cs.username
	}
	if err := d.registry.UpdateStatus(target, req.UpdateStatus.NewStatus); err != nil {
		return errorResponse(req.Operation, err)
	}
	return okResponse(req.Operation, "status updated")
}

func (d *Dispatcher) handleGetUsers(req *protocol.Request) *protocol.Response {
	var username string
	if req.GetUsers != nil {
		username = req.GetUsers.Username
	}

	list := &protocol.UserList{}
	if username == "" {
		for _, name := range d.registry.ListOnline() {
			list.Users = append(list.Users, protocol.User{Username: name})
		}
	} else {
		s, ok := d.registry.Lookup(username)
		if !ok {
			return &protocol.Response{
				Operation:  req.Operation,
				StatusCode: protocol.StatusNotFound,
				Message:    ErrUserNotFound.Error(),
			}
		}
		list.Users = []protocol.User{{Username: s.Username, IPAddress: s.IPAddress, Status: s.Status}}
	}

	return &protocol.Response{
		Operation:  req.Operation,
		StatusCode: protocol.StatusOK,
		UserList:   list,
	}
}

func (d *Dispatcher) handleSendMessage(cs *connState, req *protocol.Request) *protocol.Response {
	var recipient, content string
	if req.SendMessage != nil {
		recipient = req.SendMessage.Recipient
		content = req.SendMessage.Content
	}

	if strings.TrimSpace(content) == "" {
		return errorResponse(req.Operation, ErrEmptyMessage)
	}
	if d.opts.MaxMessageLength > 0 && len(content) > d.opts.MaxMessageLength {
		return errorResponse(req.Operation, ErrMessageTooLong)
	}

	if _, err := d.router.Route(cs.username, recipient, content); err != nil {
		return errorResponse(req.Operation, err)
	}
	return okResponse(req.Operation, "message sent")
}

func (d *Dispatcher) observe(op protocol.Operation, code protocol.StatusCode, elapsed time.Duration) {
	metrics.RequestsTotal.WithLabelValues(op.String(), code.String()).Inc()
	metrics.RequestDuration.WithLabelValues(op.String()).Observe(elapsed.Seconds())
}

func okResponse(op protocol.Operation, msg string) *protocol.Response {
	return &protocol.Response{Operation: op, StatusCode: protocol.StatusOK, Message: msg}
}

// hostOf strips the port from a host:port address.
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
