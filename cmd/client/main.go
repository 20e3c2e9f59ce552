package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/omochice/presence-chat/internal/client"
	clienttcp "github.com/omochice/presence-chat/internal/client/tcp"
	clientws "github.com/omochice/presence-chat/internal/client/ws"
	"github.com/omochice/presence-chat/internal/pkg/logx"
)

const requestTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("presence-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: presence-client [flags] <username> <server_host> <server_port>")
		fs.PrintDefaults()
	}
	useWS := fs.Bool("ws", false, "Connect over WebSocket instead of raw TCP")
	statusInterval := fs.Duration("status-interval", 0, "Re-send the current status this often to stay active (0 disables)")
	verbose := fs.Bool("v", false, "Debug logging to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return 2
	}
	username, host, port := fs.Arg(0), fs.Arg(1), fs.Arg(2)
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		fmt.Fprintf(stderr, "Invalid port %q\n", port)
		return 2
	}
	if *statusInterval < 0 {
		fmt.Fprintln(stderr, "status-interval must not be negative")
		return 2
	}

	logx.InitGlobalLogger(*verbose)
	if !*verbose {
		logx.SetOutput(stderr)
	}

	c, err := dial(ctx, *useWS, host, port)
	if err != nil {
		fmt.Fprintf(stderr, "Connection failed: %v\n", err)
		return 1
	}
	defer c.Close()

	regCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	err = c.Register(regCtx, username)
	cancel()
	if err != nil {
		fmt.Fprintf(stdout, "Error: %s\n", describe(err))
		return 1
	}
	fmt.Fprintf(stdout, "The User %s has been registered successfully.\n", username)

	r := newREPL(c, stdout)
	if err := r.run(ctx, stdin, *statusInterval); err != nil {
		fmt.Fprintf(stderr, "Disconnected: %v\n", err)
		return 1
	}
	return 0
}

func dial(ctx context.Context, useWS bool, host, port string) (*client.Client, error) {
	if useWS {
		return clientws.Dial(ctx, clientws.URL(host, port))
	}
	return clienttcp.Dial(ctx, net.JoinHostPort(host, port))
}
