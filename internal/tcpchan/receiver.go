package tcpchan

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
)

// Receiver produces the transactions arriving at one listen address.
// Implements observe.Observable and io.Closer.
//
// Transactions that arrive while no observer is subscribed are dropped.
type Receiver struct {
	listener *listener
	accept   ir.RelSet // nil accepts every relation
	logger   *slog.Logger

	mu       sync.Mutex
	observer observe.Observer
	closed   bool
}

// ListenOption configures a Receiver.
type ListenOption func(*Receiver)

// AcceptOnly restricts the receiver to updates of rels. Transactions left
// empty by the restriction are not delivered.
func AcceptOnly(rels ir.RelSet) ListenOption {
	return func(r *Receiver) {
		r.accept = rels.Clone()
	}
}

// WithLogger sets the logger used by the receiver.
func WithLogger(logger *slog.Logger) ListenOption {
	return func(r *Receiver) {
		r.logger = logger
	}
}

// Listen returns a receiver for addr, binding the socket if no other
// receiver in this process holds it.
func Listen(addr string, opts ...ListenOption) (*Receiver, error) {
	r := &Receiver{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "tcpchan", "addr", addr)
	}

	l, err := listeners.acquire(addr, r)
	if err != nil {
		return nil, err
	}
	r.listener = l
	return r, nil
}

// Addr returns the bound socket address.
func (r *Receiver) Addr() net.Addr {
	return r.listener.ln.Addr()
}

// Subscribe attaches o. Implements observe.Observable.
func (r *Receiver) Subscribe(o observe.Observer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return observe.ErrClosed
	}
	if r.observer != nil {
		return observe.ErrAlreadySubscribed
	}
	r.observer = o
	return nil
}

// Unsubscribe detaches the observer. Implements observe.Observable.
func (r *Receiver) Unsubscribe() observe.Observer {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := r.observer
	r.observer = nil
	return o
}

func (r *Receiver) deliver(txn ir.Txn) {
	if r.accept != nil {
		txn = txn.Restrict(r.accept)
	}
	if txn.Empty() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.observer == nil {
		r.logger.Debug("dropping transaction, no observer", "seq", txn.Seq)
		return
	}
	if err := r.observer.OnTxn(txn); err != nil && !errors.Is(err, observe.ErrClosed) {
		r.logger.Error("deliver failed", "seq", txn.Seq, "error", err)
	}
}

// Close detaches the receiver from its listener. The socket closes with
// the last receiver. Idempotent.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.observer = nil
	r.mu.Unlock()

	return listeners.release(r.listener, r)
}

// hub shares one listener per address across receivers.
type hub struct {
	mu    sync.Mutex
	byKey map[string]*listener
}

var listeners = &hub{byKey: make(map[string]*listener)}

func (h *hub) acquire(addr string, r *Receiver) (*listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.byKey[addr]
	if !ok {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		l = &listener{
			key:    addr,
			ln:     ln,
			taps:   make(map[*Receiver]struct{}),
			conns:  make(map[net.Conn]struct{}),
			logger: slog.Default().With("component", "tcpchan", "addr", ln.Addr().String()),
		}
		h.byKey[addr] = l
		l.wg.Add(1)
		go l.acceptLoop()
		l.logger.Debug("listening")
	}

	l.mu.Lock()
	l.taps[r] = struct{}{}
	l.mu.Unlock()
	return l, nil
}

func (h *hub) release(l *listener, r *Receiver) error {
	h.mu.Lock()
	l.mu.Lock()
	delete(l.taps, r)
	last := len(l.taps) == 0
	if last {
		l.closing = true
		delete(h.byKey, l.key)
	}
	l.mu.Unlock()
	h.mu.Unlock()

	if !last {
		return nil
	}
	return l.shutdown()
}

// listener owns one bound socket and its accepted connections.
type listener struct {
	key    string
	ln     net.Listener
	logger *slog.Logger
	wg     sync.WaitGroup

	mu      sync.Mutex
	taps    map[*Receiver]struct{}
	conns   map[net.Conn]struct{}
	closing bool
}

func (l *listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.Error("accept failed", "error", err)
			}
			return
		}

		l.mu.Lock()
		if l.closing {
			l.mu.Unlock()
			conn.Close()
			return
		}
		l.conns[conn] = struct{}{}
		l.wg.Add(1)
		l.mu.Unlock()

		go l.serve(conn)
	}
}

// serve reads frames from one peer until it disconnects.
func (l *listener) serve(conn net.Conn) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		conn.Close()
	}()

	peer := conn.RemoteAddr().String()
	l.logger.Debug("peer connected", "peer", peer)

	fr := newFrameReader(conn)
	for {
		txn, err := fr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				l.logger.Debug("peer disconnected", "peer", peer)
			} else {
				l.logger.Error("read failed, dropping connection", "peer", peer, "error", err)
			}
			return
		}
		l.dispatch(txn)
	}
}

func (l *listener) dispatch(txn ir.Txn) {
	l.mu.Lock()
	taps := make([]*Receiver, 0, len(l.taps))
	for r := range l.taps {
		taps = append(taps, r)
	}
	l.mu.Unlock()

	for _, r := range taps {
		r.deliver(txn)
	}
}

func (l *listener) shutdown() error {
	err := l.ln.Close()

	l.mu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Debug("listener closed")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener %s: %w", l.key, err)
	}
	return nil
}
