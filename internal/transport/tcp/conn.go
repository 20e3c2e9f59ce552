// Package tcp provides the length-prefixed TCP transport of the chat server.
package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/omochice/presence-chat/pkg/protocol"
)

// Conn adapts net.Conn to the chat.Conn interface. Every envelope travels as
// one frame with a 4-byte big-endian length prefix.
type Conn struct {
	conn   net.Conn
	frames *protocol.FrameReader

	writeMu sync.Mutex
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		frames: protocol.NewFrameReader(conn),
	}
}

// Read implements chat.Conn.
// Blocks until a whole frame has arrived, however the bytes were split.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadlineOf(ctx)); err != nil {
		return nil, err
	}
	return c.frames.ReadFrame()
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadlineOf(ctx)); err != nil {
		return err
	}
	return protocol.WriteFrame(c.conn, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// deadlineOf returns the deadline of ctx, or the zero time for none.
func deadlineOf(ctx context.Context) time.Time {
	if ctx == nil {
		return time.Time{}
	}
	d, _ := ctx.Deadline()
	return d
}
