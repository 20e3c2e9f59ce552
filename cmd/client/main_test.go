package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/presence-chat/internal/client"
	clienttcp "github.com/omochice/presence-chat/internal/client/tcp"
	"github.com/omochice/presence-chat/internal/config"
	"github.com/omochice/presence-chat/internal/server"
	"github.com/omochice/presence-chat/pkg/protocol"
)

// startServer runs a server with TCP and WebSocket on one loopback port.
func startServer(t *testing.T) (*server.Server, string, string) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Session.RequestRate = 0

	srv := server.New(cfg, server.Addresses{TCP: "127.0.0.1:0", WS: "127.0.0.1:0"})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, port, err := net.SplitHostPort(srv.TCPAddr())
	require.NoError(t, err)
	return srv, host, port
}

func connect(t *testing.T, srv *server.Server, name string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := clienttcp.Dial(ctx, srv.TCPAddr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Register(ctx, name))
	return c
}

func runClient(t *testing.T, args []string, script string) (int, string, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var stdout, stderr bytes.Buffer
	code := run(ctx, args, strings.NewReader(script), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"missing port", []string{"alice", "localhost"}},
		{"bad port", []string{"alice", "localhost", "http"}},
		{"port out of range", []string{"alice", "localhost", "70000"}},
		{"negative interval", []string{"-status-interval", "-1s", "alice", "localhost", "8080"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runClient(t, tt.args, "")
			assert.Equal(t, 2, code)
			assert.NotEmpty(t, stderr)
		})
	}
}

func TestRun_RegisterAndExit(t *testing.T) {
	srv, host, port := startServer(t)
	connect(t, srv, "bob")

	code, out, _ := runClient(t, []string{"alice", host, port}, "/list\n/info bob\n/exit\n")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "The User alice has been registered successfully.")
	assert.Contains(t, out, "Online users (2): alice, bob")
	assert.Contains(t, out, "bob  address=127.0.0.1  status=ONLINE")

	require.Eventually(t, func() bool { return srv.Registry().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRun_UsernameTaken(t *testing.T) {
	srv, host, port := startServer(t)
	connect(t, srv, "alice")

	code, out, _ := runClient(t, []string{"alice", host, port}, "")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Error: username already taken")
}

func TestRun_Messages(t *testing.T) {
	srv, host, port := startServer(t)
	bob := connect(t, srv, "bob")

	code, out, _ := runClient(t, []string{"-ws", "alice", host, port}, "hello all\n/msg bob psst\n/msg carol hi\n/exit\n")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "[to bob]: psst")
	assert.Contains(t, out, "Error: recipient not found")

	var got []protocol.IncomingMessage
	for len(got) < 2 {
		select {
		case msg := <-bob.Incoming():
			got = append(got, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("bob received %d messages", len(got))
		}
	}
	assert.Equal(t, []protocol.IncomingMessage{
		{Sender: "alice", Content: "hello all", Type: protocol.MessageTypeBroadcast},
		{Sender: "alice", Content: "psst", Type: protocol.MessageTypeDirect},
	}, got)
}

func TestRun_Status(t *testing.T) {
	srv, host, port := startServer(t)

	code, out, _ := runClient(t, []string{"alice", host, port}, "/status busy\n/info alice\n/status away\n/bogus\n")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Status set to BUSY")
	assert.Contains(t, out, "alice  address=127.0.0.1  status=BUSY")
	assert.Contains(t, out, "Error: usage: /status online|busy|offline")
	assert.Contains(t, out, "Error: unknown command /bogus, try /help")

	require.Eventually(t, func() bool { return srv.Registry().Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestREPL_Execute(t *testing.T) {
	srv, _, _ := startServer(t)
	alice := connect(t, srv, "alice")

	var out bytes.Buffer
	r := newREPL(alice, &out)
	ctx := context.Background()

	assert.NoError(t, r.execute(ctx, "   "))
	assert.ErrorIs(t, r.execute(ctx, "/exit"), errQuit)
	assert.ErrorIs(t, r.execute(ctx, "/QUIT"), errQuit)
	assert.EqualError(t, r.execute(ctx, "/msg bob"), "usage: /msg <user> <text>")
	assert.EqualError(t, r.execute(ctx, "/all"), "usage: /all <text>")
	assert.EqualError(t, r.execute(ctx, "/info"), "usage: /info <user>")

	err := r.execute(ctx, "/info nobody")
	assert.True(t, client.IsNotFound(err))
	assert.Equal(t, "user not found", describe(err))

	require.NoError(t, r.execute(ctx, "/help"))
	assert.Contains(t, out.String(), "/status <status>")
}
