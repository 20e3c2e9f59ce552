package ws_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/presence-chat/internal/chat"
	clientws "github.com/omochice/presence-chat/internal/client/ws"
	transportws "github.com/omochice/presence-chat/internal/transport/ws"
	"github.com/omochice/presence-chat/pkg/protocol"
)

func TestDial(t *testing.T) {
	opts := chat.DefaultOptions()
	opts.RequestRate = 0
	registry := chat.NewRegistry()
	srv := transportws.New("127.0.0.1:0", chat.NewDispatcher(registry, chat.NewRouter(registry, true), opts))
	require.NoError(t, srv.Listen())
	go srv.Serve()
	t.Cleanup(srv.Stop)

	host, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := clientws.Dial(ctx, clientws.URL(host, port))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Register(ctx, "alice"))

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	require.NoError(t, c.SendMessage(ctx, "", "echo"))
	select {
	case msg := <-c.Incoming():
		assert.Equal(t, protocol.IncomingMessage{Sender: "alice", Content: "echo", Type: protocol.MessageTypeBroadcast}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast echo")
	}

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws", clientws.URL("localhost", "8080"))
	assert.Equal(t, "ws://[::1]:8080/ws", clientws.URL("::1", "8080"))
}

// upgrade starts an httptest server that runs fn on each raw upgraded
// connection and returns a client-side Conn.
func upgrade(t *testing.T, fn func(conn net.Conn)) *clientws.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}))
	t.Cleanup(server.Close)

	conn, br, _, err := ws.Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"))
	require.NoError(t, err)
	c := clientws.NewConn(conn, br)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConn_ReadWrite(t *testing.T) {
	c := upgrade(t, func(conn net.Conn) {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		_ = wsutil.WriteServerBinary(conn, append([]byte("re:"), data...))
		_, _, _ = wsutil.ReadClientData(conn)
	})

	require.NoError(t, c.Write(context.Background(), []byte("ping")))
	data, err := c.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "re:ping", string(data))
}

func TestConn_ReadRejectsText(t *testing.T) {
	c := upgrade(t, func(conn net.Conn) {
		_ = wsutil.WriteServerText(conn, []byte("hello"))
		_, _, _ = wsutil.ReadClientData(conn)
	})

	_, err := c.Read(context.Background())
	assert.ErrorIs(t, err, clientws.ErrTextMessage)
}

func TestConn_NormalCloseIsEOF(t *testing.T) {
	c := upgrade(t, func(conn net.Conn) {
		_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		_, _, _ = wsutil.ReadClientData(conn)
	})

	_, err := c.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
