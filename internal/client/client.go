// Package client implements the chat client session on top of any chat.Conn.
//
// A Client runs one reader goroutine that separates replies from
// INCOMING_MESSAGE pushes. Requests are serialized: each call sends one
// request and waits for the matching reply, while pushes arriving in between
// are delivered on Incoming.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochice/presence-chat/internal/chat"
	"github.com/omochice/presence-chat/internal/pkg/logx"
	"github.com/omochice/presence-chat/pkg/protocol"
)

// ErrClosed is returned by requests made after the connection ended.
var ErrClosed = errors.New("client: connection closed")

// StatusError is a non-OK reply from the server.
type StatusError struct {
	Operation protocol.Operation
	Code      protocol.StatusCode
	Message   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s (%s)", e.Operation, e.Message, e.Code)
}

// IsNotFound reports whether err is a NOT_FOUND reply.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == protocol.StatusNotFound
}

// Client is one chat session.
type Client struct {
	conn     chat.Conn
	incoming chan protocol.IncomingMessage
	replies  chan *protocol.Response

	reqMu    sync.Mutex
	username string
	// abandoned counts requests whose caller gave up before the reply
	// arrived. Replies come back in request order, so that many replies are
	// discarded before the next one is matched. Guarded by reqMu.
	abandoned int

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
	wg        sync.WaitGroup

	logger zerolog.Logger
}

// New starts a Client over conn. The caller still has to Register.
func New(conn chat.Conn) *Client {
	c := &Client{
		conn:     conn,
		incoming: make(chan protocol.IncomingMessage, 64),
		replies:  make(chan *protocol.Response, 1),
		done:     make(chan struct{}),
		logger:   logx.Component("client").With().Str("server", conn.RemoteAddr()).Logger(),
	}
	c.wg.Add(1)
	go c.receive()
	return c
}

// Username returns the name registered on this connection, if any.
func (c *Client) Username() string {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.username
}

// Register claims username for this connection.
func (c *Client) Register(ctx context.Context, username string) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if _, err := c.do(ctx, protocol.NewRegisterRequest(username)); err != nil {
		return err
	}
	c.username = username
	return nil
}

// UpdateStatus sets the presence of username; an empty username means the
// caller's own session.
func (c *Client) UpdateStatus(ctx context.Context, username string, status protocol.UserStatus) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	_, err := c.do(ctx, protocol.NewUpdateStatusRequest(username, status))
	return err
}

// ListUsers returns the usernames currently ONLINE.
func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	resp, err := c.do(ctx, protocol.NewGetUsersRequest(""))
	if err != nil {
		return nil, err
	}
	var names []string
	if resp.UserList != nil {
		for _, u := range resp.UserList.Users {
			names = append(names, u.Username)
		}
	}
	return names, nil
}

// GetUser returns the full record of username.
func (c *Client) GetUser(ctx context.Context, username string) (protocol.User, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	resp, err := c.do(ctx, protocol.NewGetUsersRequest(username))
	if err != nil {
		return protocol.User{}, err
	}
	if resp.UserList == nil || len(resp.UserList.Users) == 0 {
		return protocol.User{}, &StatusError{Operation: resp.Operation, Code: protocol.StatusNotFound, Message: "empty user list"}
	}
	return resp.UserList.Users[0], nil
}

// SendMessage sends content to recipient, or to everyone when recipient is
// empty.
func (c *Client) SendMessage(ctx context.Context, recipient, content string) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	_, err := c.do(ctx, protocol.NewSendMessageRequest(recipient, content))
	return err
}

// Incoming delivers pushed messages. It is closed when the connection ends.
// Pushes that arrive while the channel is full are dropped.
func (c *Client) Incoming() <-chan protocol.IncomingMessage {
	return c.incoming
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close closes the connection and waits for the reader to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	c.wg.Wait()
	return err
}

// do sends req and waits for its reply. c.reqMu must be held.
func (c *Client) do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	data, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	select {
	case <-c.done:
		return nil, c.closedErr()
	default:
	}

	if err := c.conn.Write(ctx, data); err != nil {
		// A partial frame leaves the stream unusable.
		c.finish(err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	for {
		select {
		case resp, ok := <-c.replies:
			if !ok {
				return nil, c.closedErr()
			}
			if c.abandoned > 0 {
				c.abandoned--
				c.logger.Debug().Str("operation", resp.Operation.String()).Msg("Discarding reply to abandoned request")
				continue
			}
			if resp.Operation != req.Operation {
				return nil, fmt.Errorf("unexpected reply %s to %s", resp.Operation, req.Operation)
			}
			if resp.StatusCode != protocol.StatusOK {
				return nil, &StatusError{Operation: resp.Operation, Code: resp.StatusCode, Message: resp.Message}
			}
			return resp, nil
		case <-c.done:
			return nil, c.closedErr()
		case <-ctx.Done():
			c.abandoned++
			return nil, ctx.Err()
		}
	}
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return ErrClosed
}

func (c *Client) receive() {
	defer c.wg.Done()
	defer close(c.incoming)
	defer close(c.replies)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		data, err := c.conn.Read(ctx)
		if err != nil {
			c.finish(err)
			return
		}

		resp, err := protocol.DecodeResponse(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Dropping undecodable envelope")
			continue
		}

		if resp.Operation == protocol.OperationIncomingMessage {
			if resp.Incoming == nil {
				continue
			}
			select {
			case c.incoming <- *resp.Incoming:
			default:
				c.logger.Warn().Str("sender", resp.Incoming.Sender).Msg("Incoming queue full, message dropped")
			}
			continue
		}

		select {
		case c.replies <- resp:
		case <-c.done:
			return
		}
	}
}

// finish records why the reader stopped and marks the client done.
func (c *Client) finish(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	c.logger.Debug().Err(err).Msg("Connection ended")

	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
