// Package ws dials the chat server's WebSocket transport using gobwas/ws.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/presence-chat/internal/client"
	"github.com/omochice/presence-chat/pkg/protocol"
)

// Path is the route the server upgrades on.
const Path = "/ws"

// ErrTextMessage is returned when the server sends a text message.
var ErrTextMessage = errors.New("ws: text messages are not supported")

// Conn is the client side of a WebSocket connection. It implements
// chat.Conn with one envelope per binary message.
type Conn struct {
	conn   net.Conn
	reader io.Reader

	writeMu sync.Mutex
}

// NewConn wraps an upgraded connection. br holds any bytes the handshake
// read past the response and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	c := &Conn{conn: conn, reader: conn}
	if br != nil {
		c.reader = br
	}
	return c
}

// Read implements chat.Conn.
// Control frames are answered transparently; a close frame with a normal
// status is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadlineOf(ctx)); err != nil {
		return nil, err
	}

	rw := struct {
		io.Reader
		io.Writer
	}{c.reader, lockedWriter{c}}

	data, op, err := wsutil.ReadServerData(rw)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) && (closed.Code == ws.StatusNormalClosure || closed.Code == ws.StatusGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	if op != ws.OpBinary {
		return nil, fmt.Errorf("%w: opcode %v", ErrTextMessage, op)
	}
	if len(data) > protocol.MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", protocol.ErrFrameTooLarge, len(data))
	}
	return data, nil
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadlineOf(ctx)); err != nil {
		return err
	}
	return wsutil.WriteClientBinary(c.conn, data)
}

// Close implements chat.Conn. It sends a close frame before closing the socket.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// lockedWriter serializes control-frame replies with regular writes.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

// Dial upgrades a connection to url (ws://host:port/ws) and returns a
// running client. The session is not registered yet.
func Dial(ctx context.Context, url string) (*client.Client, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return client.New(NewConn(conn, br)), nil
}

// URL builds the WebSocket URL of a server listening on host:port.
func URL(host, port string) string {
	return "ws://" + net.JoinHostPort(host, port) + Path
}

func deadlineOf(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}
