package ws_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/omochice/presence-chat/internal/chat"
	"github.com/omochice/presence-chat/internal/transport/ws"
)

func TestConn_ImplementsInterface(t *testing.T) {
	var _ chat.Conn = (*ws.Conn)(nil)
}

// dialTestServer starts an httptest server running serverFn on each upgraded
// connection and returns a client-side connection to it.
func dialTestServer(t *testing.T, serverFn func(c *websocket.Conn)) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		serverFn(c)
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	wsConn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { wsConn.Close(websocket.StatusNormalClosure, "") })
	return wsConn
}

func TestConn_Read(t *testing.T) {
	wsConn := dialTestServer(t, func(c *websocket.Conn) {
		_ = c.Write(context.Background(), websocket.MessageBinary, []byte("test message"))
		_, _, _ = c.Read(context.Background())
	})

	conn := ws.NewConn(wsConn)

	data, err := conn.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test message", string(data))
}

func TestConn_ReadNormalCloseIsEOF(t *testing.T) {
	wsConn := dialTestServer(t, func(c *websocket.Conn) {
		c.Close(websocket.StatusNormalClosure, "bye")
	})

	conn := ws.NewConn(wsConn)

	_, err := conn.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_ReadRejectsText(t *testing.T) {
	wsConn := dialTestServer(t, func(c *websocket.Conn) {
		_ = c.Write(context.Background(), websocket.MessageText, []byte("hello"))
		_, _, _ = c.Read(context.Background())
	})

	conn := ws.NewConn(wsConn)

	_, err := conn.Read(context.Background())
	assert.ErrorIs(t, err, ws.ErrTextMessage)
}

func TestConn_Write(t *testing.T) {
	received := make(chan []byte, 1)
	wsConn := dialTestServer(t, func(c *websocket.Conn) {
		typ, data, err := c.Read(context.Background())
		if err != nil || typ != websocket.MessageBinary {
			close(received)
			return
		}
		received <- data
	})

	conn := ws.NewConn(wsConn)
	require.NoError(t, conn.Write(context.Background(), []byte("hello")))

	assert.Equal(t, "hello", string(<-received))
}

func TestConn_Close(t *testing.T) {
	wsConn := dialTestServer(t, func(c *websocket.Conn) {
		_, _, _ = c.Read(context.Background())
	})

	conn := ws.NewConn(wsConn)
	assert.NoError(t, conn.Close())
}

func TestConn_RemoteAddr(t *testing.T) {
	wsConn := dialTestServer(t, func(c *websocket.Conn) {
		_, _, _ = c.Read(context.Background())
	})

	conn := ws.NewConnWithAddr(wsConn, "127.0.0.1:5555")
	assert.Equal(t, "127.0.0.1:5555", conn.RemoteAddr())
}
