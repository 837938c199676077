package audiosocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/uuid"
)

// Handler is invoked once per accepted connection, after the handshake
// frame has been read and the session UUID resolved. Handler owns the
// connection for the remainder of the call and must call conn.Close when done.
type Handler func(ctx context.Context, sessionID uuid.UUID, conn *Conn)

// Listener accepts AudioSocket TCP connections and dispatches each to a
// Handler after completing the per-connection handshake. Grounded on the
// teacher's Connection lifecycle: one goroutine per accepted connection,
// context-cancellation-driven shutdown of the accept loop.
type Listener struct {
	ln      net.Listener
	handler Handler
}

// Listen binds addr (host:port) and returns a Listener ready for Serve.
func Listen(addr string, handler Handler) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("audiosocket: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, handler: handler}, nil
}

// Addr returns the bound network address, useful when addr passed to Listen
// used an ephemeral port.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener errors.
// Each connection gets its own goroutine, which runs the handshake and then
// hands the connection to Handler, so a slow handshake never blocks Accept.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("audiosocket: accept: %w", err)
		}

		conn := NewConn(nc)
		go func() {
			sessionID, err := conn.Handshake()
			if err != nil {
				slog.Warn("audiosocket: handshake failed", "remote", nc.RemoteAddr(), "error", err)
				_ = conn.Close()
				return
			}
			l.handler(ctx, sessionID, conn)
		}()
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
