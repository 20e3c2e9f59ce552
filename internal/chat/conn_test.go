package chat_test

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/presence-chat/internal/chat"
	"github.com/omochice/presence-chat/pkg/protocol"
)

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	closeCh    chan struct{}
	closeOnce  sync.Once
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	writeBlock chan struct{}
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 16),
		closeCh:    make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closeCh:
		return nil, net.ErrClosed
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	if m.writeBlock != nil {
		select {
		case <-m.writeBlock:
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closeCh:
			return net.ErrClosed
		}
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) IsClosed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

func (m *mockConn) GetWritten() [][]byte {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)

// send encodes req and feeds it to the connection's read side.
func (m *mockConn) send(t *testing.T, req *protocol.Request) {
	t.Helper()
	data, err := req.Encode()
	require.NoError(t, err)
	m.readCh <- data
}

// responses decodes everything written so far.
func (m *mockConn) responses(t *testing.T) []*protocol.Response {
	t.Helper()
	var out []*protocol.Response
	for _, data := range m.GetWritten() {
		resp, err := protocol.DecodeResponse(data)
		require.NoError(t, err)
		out = append(out, resp)
	}
	return out
}

// waitResponses waits until at least n envelopes were written and returns them.
func (m *mockConn) waitResponses(t *testing.T, n int) []*protocol.Response {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(m.GetWritten()) >= n
	}, 2*time.Second, 5*time.Millisecond, "expected %d envelopes", n)
	return m.responses(t)
}

// replies filters out INCOMING_MESSAGE pushes.
func replies(resps []*protocol.Response) []*protocol.Response {
	var out []*protocol.Response
	for _, r := range resps {
		if r.Operation != protocol.OperationIncomingMessage {
			out = append(out, r)
		}
	}
	return out
}

// pushes keeps only INCOMING_MESSAGE pushes.
func pushes(resps []*protocol.Response) []*protocol.IncomingMessage {
	var out []*protocol.IncomingMessage
	for _, r := range resps {
		if r.Operation == protocol.OperationIncomingMessage {
			out = append(out, r.Incoming)
		}
	}
	return out
}

// fakeClock is a settable time source safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
