package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/omochice/presence-chat/internal/config"
	"github.com/omochice/presence-chat/internal/pkg/logx"
	"github.com/omochice/presence-chat/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

// run starts the server and blocks until ctx is cancelled. It returns the
// process exit code: 2 for usage errors, 1 for startup or serve failures.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("presence-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: presence-server [flags] <port>")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "YAML configuration file")
	wsPort := fs.Int("ws-port", -1, "WebSocket port (0 disables, same as <port> shares it)")
	adminPort := fs.Int("admin-port", -1, "Admin HTTP port for /healthz, /metrics and /sessions (0 disables)")
	dev := fs.Bool("dev", false, "Development mode: console logs at debug level")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	switch fs.NArg() {
	case 0:
		if cfg.Server.Port == 0 {
			fs.Usage()
			return 2
		}
	case 1:
		port, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "Invalid port %q\n", fs.Arg(0))
			return 2
		}
		cfg.Server.Port = port
	default:
		fs.Usage()
		return 2
	}
	if *wsPort >= 0 {
		cfg.Server.WSPort = *wsPort
	}
	if *adminPort >= 0 {
		cfg.Server.AdminPort = *adminPort
	}
	if *dev {
		cfg.Environment = "development"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())

	srv := server.New(cfg, server.AddressesFrom(cfg))
	if err := srv.Listen(); err != nil {
		logx.Error(err, "Failed to start server")
		return 1
	}
	logx.Info("Server started",
		"tcp", srv.TCPAddr(),
		"ws", srv.WSAddr(),
		"admin", srv.AdminAddr(),
		"inactivity_timeout", cfg.Session.InactivityTimeout.String(),
	)

	if err := srv.Run(ctx); err != nil {
		logx.Error(err, "Server error")
		return 1
	}
	return 0
}
