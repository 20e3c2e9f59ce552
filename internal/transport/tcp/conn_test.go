package tcp_test

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/presence-chat/internal/chat"
	"github.com/omochice/presence-chat/internal/transport/tcp"
	"github.com/omochice/presence-chat/pkg/protocol"
)

func TestConn_ImplementsInterface(t *testing.T) {
	var _ chat.Conn = (*tcp.Conn)(nil)
}

func TestConn_Read(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		_ = protocol.WriteFrame(server, []byte("test message"))
		server.Close()
	}()

	data, err := conn.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test message", string(data))

	_, err = conn.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_ReadSplitFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	frame := protocol.AppendFrame(nil, []byte("hello"))
	frame = protocol.AppendFrame(frame, []byte("world"))

	go func() {
		for _, b := range frame {
			if _, err := server.Write([]byte{b}); err != nil {
				return
			}
		}
	}()

	for _, want := range []string{"hello", "world"} {
		data, err := conn.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestConn_ReadTruncated(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		header := binary.BigEndian.AppendUint32(nil, 10)
		_, _ = server.Write(append(header, "abc"...))
		server.Close()
	}()

	_, err := conn.Read(context.Background())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestConn_ReadDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conn.Read(ctx)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestConn_Write(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		assert.NoError(t, conn.Write(context.Background(), []byte("hello")))
	}()

	data, err := protocol.NewFrameReader(server).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestConn_Close(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := tcp.NewConn(client)
	require.NoError(t, conn.Close())

	_, err := client.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestConn_RemoteAddr(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)
	assert.NotEmpty(t, conn.RemoteAddr())
}
