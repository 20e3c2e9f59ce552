package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/omochice/presence-chat/internal/client"
	"github.com/omochice/presence-chat/pkg/protocol"
)

const helpText = `Commands:
  <text>                   send <text> to everyone
  /all <text>              send <text> to everyone
  /msg <user> <text>       send <text> to <user> only
  /status <status>         set your status: online, busy or offline
  /list                    list online users
  /info <user>             show a user's address and status
  /help                    show this help
  /exit                    leave the chat`

var errQuit = errors.New("quit")

// repl is the interactive loop of one registered client.
type repl struct {
	client *client.Client

	mu     sync.Mutex
	out    io.Writer
	status protocol.UserStatus
}

func newREPL(c *client.Client, out io.Writer) *repl {
	return &repl{client: c, out: out, status: protocol.UserStatusOnline}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// run reads commands from in until /exit, end of input, ctx cancellation or
// the server closing the connection. Only the last is reported as an error.
func (r *repl) run(ctx context.Context, in io.Reader, statusInterval time.Duration) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.printIncoming()
	}()

	if statusInterval > 0 {
		refreshCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.refreshStatus(refreshCtx, statusInterval)
		}()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-r.client.Done():
				return
			}
		}
	}()

	r.printf("%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			return r.leave()
		case <-r.client.Done():
			if err := r.client.Err(); err != nil {
				return err
			}
			return client.ErrClosed
		case line, ok := <-lines:
			if !ok {
				return r.leave()
			}
			if err := r.execute(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return r.leave()
				}
				if errors.Is(err, client.ErrClosed) {
					return err
				}
				r.printf("Error: %s\n", describe(err))
			}
		}
	}
}

// leave closes the connection, which also stops the incoming printer.
func (r *repl) leave() error {
	_ = r.client.Close()
	return nil
}

// execute runs one command line.
func (r *repl) execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if !strings.HasPrefix(line, "/") {
		return r.client.SendMessage(ctx, "", line)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "/all":
		if rest == "" {
			return errors.New("usage: /all <text>")
		}
		return r.client.SendMessage(ctx, "", rest)

	case "/msg":
		recipient, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if recipient == "" || text == "" {
			return errors.New("usage: /msg <user> <text>")
		}
		if err := r.client.SendMessage(ctx, recipient, text); err != nil {
			return err
		}
		r.printf("[to %s]: %s\n", recipient, text)
		return nil

	case "/status":
		status, err := protocol.ParseUserStatus(rest)
		if err != nil {
			return errors.New("usage: /status online|busy|offline")
		}
		if err := r.client.UpdateStatus(ctx, "", status); err != nil {
			return err
		}
		r.mu.Lock()
		r.status = status
		r.mu.Unlock()
		r.printf("Status set to %s\n", status)
		return nil

	case "/list":
		users, err := r.client.ListUsers(ctx)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			r.printf("No users online\n")
			return nil
		}
		r.printf("Online users (%d): %s\n", len(users), strings.Join(users, ", "))
		return nil

	case "/info":
		if rest == "" {
			return errors.New("usage: /info <user>")
		}
		u, err := r.client.GetUser(ctx, rest)
		if err != nil {
			return err
		}
		r.printf("%s  address=%s  status=%s\n", u.Username, u.IPAddress, u.Status)
		return nil

	case "/help":
		r.printf("%s\n", helpText)
		return nil

	case "/exit", "/quit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
}

func (r *repl) printIncoming() {
	for msg := range r.client.Incoming() {
		switch msg.Type {
		case protocol.MessageTypeDirect:
			r.printf("[%s -> you]: %s\n", msg.Sender, msg.Content)
		default:
			r.printf("[%s]: %s\n", msg.Sender, msg.Content)
		}
	}
}

// refreshStatus re-sends the current status so an idle but attached client
// is not marked offline.
func (r *repl) refreshStatus(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.client.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			status := r.status
			r.mu.Unlock()

			reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			err := r.client.UpdateStatus(reqCtx, "", status)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				r.printf("Error: status refresh failed: %s\n", describe(err))
			}
		}
	}
}

// describe returns the server's message for status errors.
func describe(err error) string {
	var se *client.StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
