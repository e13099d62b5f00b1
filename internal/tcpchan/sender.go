package tcpchan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
)

// Retry defaults for DialWithRetry.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = 500 * time.Millisecond
)

// ConnectError is returned when a peer could not be reached before the
// retry deadline.
type ConnectError struct {
	Addr     string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to node at %s after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

// Unwrap returns the last dial error.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Sender writes transactions to one peer. Implements observe.Observer and
// io.Closer.
type Sender struct {
	mu     sync.Mutex
	addr   string
	conn   net.Conn
	w      *frameWriter
	closed bool
}

// Dial connects to addr once.
func Dial(ctx context.Context, addr string) (*Sender, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Sender{addr: addr, conn: conn, w: newFrameWriter(conn)}, nil
}

// DialWithRetry dials addr every interval until it succeeds, timeout
// elapses or ctx is cancelled. Failure is always a *ConnectError.
func DialWithRetry(ctx context.Context, addr string, timeout, interval time.Duration) (*Sender, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := slog.Default().With("component", "tcpchan", "addr", addr)
	attempts := 0
	for {
		attempts++
		s, err := Dial(ctx, addr)
		if err == nil {
			logger.Debug("connected", "attempts", attempts)
			return s, nil
		}

		logger.Debug("dial failed", "attempt", attempts, "error", err)
		select {
		case <-ctx.Done():
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				err = ctx.Err()
			}
			return nil, &ConnectError{Addr: addr, Attempts: attempts, Err: err}
		case <-time.After(interval):
		}
	}
}

// Addr returns the peer address.
func (s *Sender) Addr() string {
	return s.addr
}

// OnTxn writes txn as one frame. Empty transactions are not sent.
func (s *Sender) OnTxn(txn ir.Txn) error {
	if txn.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return observe.ErrClosed
	}
	if err := s.w.Write(txn); err != nil {
		return fmt.Errorf("send to %s: %w", s.addr, err)
	}
	return nil
}

// OnCompleted is a no-op; the connection stays open until Close.
func (s *Sender) OnCompleted() error {
	return nil
}

// Close closes the connection. Idempotent.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
