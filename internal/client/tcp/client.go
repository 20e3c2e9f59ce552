// Package tcp dials the chat server's length-prefixed TCP transport.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/omochice/presence-chat/internal/client"
	"github.com/omochice/presence-chat/internal/pkg/logx"
	"github.com/omochice/presence-chat/internal/transport/tcp"
)

const (
	dialTimeout      = 5 * time.Second
	dialRetries      = 3
	dialRetryInitial = 200 * time.Millisecond
	dialRetryMax     = 2 * time.Second
)

// Dial connects to address, retrying with exponential backoff, and returns
// a running client. The session is not registered yet.
func Dial(ctx context.Context, address string) (*client.Client, error) {
	var conn net.Conn
	dialer := &net.Dialer{Timeout: dialTimeout}

	operation := func() error {
		c, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(dialRetryInitial),
				backoff.WithMaxInterval(dialRetryMax),
			),
			dialRetries,
		),
		ctx,
	)

	err := backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		logx.Warn("Failed to connect to server, retrying", "addr", address, "error", err, "retry_in", d)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	return client.New(tcp.NewConn(conn)), nil
}
