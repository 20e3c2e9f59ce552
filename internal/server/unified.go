package server

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// sniffTimeout bounds how long a new connection on a shared port may stay
// silent before it is treated as a raw TCP client.
const sniffTimeout = 5 * time.Second

// httpMethodPrefixes are the first four bytes of HTTP/1 requests. Read as a
// big-endian frame length each of them is far above the frame size limit, so
// no valid TCP client can start with one.
var httpMethodPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("PATC"),
	[]byte("DELE"),
	[]byte("CONN"),
}

func isHTTP(prefix []byte) bool {
	for _, p := range httpMethodPrefixes {
		if bytes.HasPrefix(prefix, p) {
			return true
		}
	}
	return false
}

// portMux splits one listener into a raw TCP listener and an HTTP listener by
// peeking at the first bytes of every connection.
type portMux struct {
	listener net.Listener
	tcp      *chanListener
	http     *chanListener
	wg       sync.WaitGroup
	logger   zerolog.Logger

	mu       sync.Mutex
	closed   bool
	sniffing map[net.Conn]struct{}
}

func newPortMux(l net.Listener, logger zerolog.Logger) *portMux {
	return &portMux{
		listener: l,
		tcp:      newChanListener(l.Addr()),
		http:     newChanListener(l.Addr()),
		logger:   logger,
		sniffing: make(map[net.Conn]struct{}),
	}
}

// serve accepts until the underlying listener is closed.
func (m *portMux) serve() {
	defer m.tcp.Close()
	defer m.http.Close()

	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				m.logger.Warn().Err(err).Msg("Shared listener accept failed")
			}
			m.wg.Wait()
			return
		}

		m.wg.Add(1)
		go m.route(conn)
	}
}

func (m *portMux) route(conn net.Conn) {
	defer m.wg.Done()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.sniffing[conn] = struct{}{}
	_ = conn.SetReadDeadline(time.Now().Add(sniffTimeout))
	m.mu.Unlock()

	reader := bufio.NewReader(conn)
	prefix, err := reader.Peek(4)

	m.mu.Lock()
	delete(m.sniffing, conn)
	closed := m.closed
	m.mu.Unlock()
	if closed {
		conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var ne net.Error
	if err != nil && !(errors.As(err, &ne) && ne.Timeout()) {
		m.logger.Debug().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Connection closed before sniffing")
		conn.Close()
		return
	}

	bc := &bufferedConn{Conn: conn, reader: reader}
	if isHTTP(prefix) {
		m.http.deliver(bc)
		return
	}
	m.tcp.deliver(bc)
}

// close stops accepting and drops connections still being sniffed. serve
// returns once every pending connection is routed or dropped.
func (m *portMux) close() error {
	m.mu.Lock()
	m.closed = true
	for conn := range m.sniffing {
		_ = conn.SetReadDeadline(time.Now())
	}
	m.mu.Unlock()
	return m.listener.Close()
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve peeked data
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

// chanListener is a net.Listener fed by portMux.
type chanListener struct {
	addr      net.Addr
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newChanListener(addr net.Addr) *chanListener {
	return &chanListener{
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

func (l *chanListener) deliver(conn net.Conn) {
	select {
	case l.conns <- conn:
	case <-l.done:
		conn.Close()
	}
}

func (l *chanListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *chanListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *chanListener) Addr() net.Addr {
	return l.addr
}
