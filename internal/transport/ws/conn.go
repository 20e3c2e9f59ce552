// Package ws provides the WebSocket transport of the chat server.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"

	"nhooyr.io/websocket"

	"github.com/omochice/presence-chat/pkg/protocol"
)

// ErrTextMessage is returned when the peer sends a text message; envelopes
// only travel in binary messages.
var ErrTextMessage = errors.New("ws: text messages are not supported")

// Conn adapts nhooyr.io/websocket to the chat.Conn interface. Each binary
// message carries exactly one envelope.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewConn wraps a websocket.Conn with empty remote address.
func NewConn(conn *websocket.Conn) *Conn {
	return NewConnWithAddr(conn, "")
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	conn.SetReadLimit(protocol.MaxFrameSize)
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements chat.Conn.
// A normal close by the peer is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		return nil, err
	}
	if typ != websocket.MessageBinary {
		_ = c.conn.Close(websocket.StatusUnsupportedData, "binary messages only")
		return nil, fmt.Errorf("%w: got %v", ErrTextMessage, typ)
	}
	return data, nil
}

// Write implements chat.Conn.
// Writes a binary message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageBinary, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
