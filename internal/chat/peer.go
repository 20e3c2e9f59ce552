package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Peer is the server side of one accepted connection and the handle other
// sessions use to reach it. All writes go through its outbound queue and a
// single writer goroutine, so replies and pushes never interleave.
type Peer struct {
	ID   string
	Conn Conn

	outgoing     chan []byte
	done         chan struct{}
	writerDone   chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// NewPeer wraps conn with an outbound queue of the given size.
func NewPeer(conn Conn, queueSize int, writeTimeout time.Duration, logger zerolog.Logger) *Peer {
	if queueSize <= 0 {
		queueSize = 1
	}
	id := uuid.NewString()
	return &Peer{
		ID:           id,
		Conn:         conn,
		outgoing:     make(chan []byte, queueSize),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
		writeTimeout: writeTimeout,
		logger: logger.With().
			Str("conn_id", id).
			Str("remote_addr", conn.RemoteAddr()).
			Logger(),
	}
}

// Start launches the writer goroutine.
func (p *Peer) Start() {
	go p.writeLoop()
}

// Send queues data, blocking while the queue is full. It returns false once
// the peer is closed or ctx is done.
func (p *Peer) Send(ctx context.Context, data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.outgoing <- data:
		return true
	case <-p.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Push queues data without blocking. It returns false if the queue is full
// or the peer is closed; the data is dropped in that case.
func (p *Peer) Push(data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.outgoing <- data:
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the connection. It is safe to call more
// than once and from any goroutine.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		if err := p.Conn.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("Connection close error")
		}
	})
}

// Done is closed when the peer is closed.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the writer goroutine has exited.
func (p *Peer) Wait() {
	<-p.writerDone
}

func (p *Peer) writeLoop() {
	defer close(p.writerDone)
	for {
		// Queued data is discarded once the peer is closed.
		select {
		case <-p.done:
			return
		default:
		}

		select {
		case data := <-p.outgoing:
			if err := p.write(data); err != nil {
				select {
				case <-p.done:
				default:
					p.logger.Warn().Err(err).Msg("Failed to write to client")
					p.Close()
				}
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *Peer) write(data []byte) error {
	ctx := context.Background()
	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}
	return p.Conn.Write(ctx, data)
}
