package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
	"github.com/roach88/ddnet/internal/store"
)

// Callback observes every committed change: weight is +1 when a fact appears
// and -1 when it disappears.
type Callback func(rel ir.RelID, value ir.Value, weight int)

// Engine is one running instance of the program.
//
// Thread-safety model:
//   - OnTxn, OnCompleted, AddStream, Redirect, Contents and Close are safe
//     from any goroutine; OnTxn calls are serialized internally
//   - Lock order is Engine.mu before Stream.mu
//
// INVARIANTS:
//   - The redirect map is only replaced, never mutated in place
//   - After Close, OnTxn returns observe.ErrClosed
type Engine struct {
	mu        sync.Mutex
	store     *store.Store
	program   *Program
	workers   int
	replay    bool
	callback  Callback
	redirects map[ir.RelID]ir.RelID
	streams   []*Stream
	clock     *Clock
	closed    bool
	logger    *slog.Logger
	storePath string
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithStorePath keeps relation state in a SQLite file instead of memory.
func WithStorePath(path string) Option {
	return func(e *Engine) {
		e.storePath = path
	}
}

// WithLogger sets the logger used by the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the clock stamping published transactions.
func WithClock(clock *Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// Start creates a running engine for program.
//
// workers bounds the number of streams served concurrently when a
// transaction is published. With replay set, a new stream subscriber first
// receives the current contents of the stream's relations as one
// transaction. callback may be nil.
func Start(program *Program, workers int, replay bool, callback Callback, opts ...Option) (*Engine, error) {
	if workers < 1 {
		return nil, &Error{Code: ErrCodeStart, Message: fmt.Sprintf("worker count must be positive, got %d", workers)}
	}

	e := &Engine{
		program:   program,
		workers:   workers,
		replay:    replay,
		callback:  callback,
		redirects: map[ir.RelID]ir.RelID{},
		clock:     NewClock(),
		storePath: store.MemoryPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "engine")
	}

	st, err := store.Open(e.storePath)
	if err != nil {
		return nil, &Error{Code: ErrCodeStart, Message: "failed to open relation store", Err: err}
	}
	e.store = st

	e.logger.Debug("engine started", "workers", workers, "replay", replay, "rules", len(program.Rules()))
	return e, nil
}

// Redirect installs the relabeling applied to every incoming update: an
// update on relation s is applied to redirects[s] when present. The map is
// copied.
func (e *Engine) Redirect(redirects map[ir.RelID]ir.RelID) {
	m := make(map[ir.RelID]ir.RelID, len(redirects))
	for src, dst := range redirects {
		m[src] = dst
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.redirects = m
}

// AddStream returns a new output stream restricted to rels. The set is
// copied.
func (e *Engine) AddStream(rels ir.RelSet) *Stream {
	s := &Stream{engine: e, rels: rels.Clone()}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.streams = append(e.streams, s)
	return s
}

// OnTxn applies one transaction and publishes its consequences.
// Implements observe.Observer.
func (e *Engine) OnTxn(txn ir.Txn) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return observe.ErrClosed
	}

	updates := make([]ir.Update, len(txn.Updates))
	for i, u := range txn.Updates {
		if dst, ok := e.redirects[u.Rel]; ok {
			u.Rel = dst
		}
		u.Value = u.Value.Canonical()
		updates[i] = u
	}

	changes, err := e.store.ApplyDerived(context.Background(), updates, e.program.derive)
	if err != nil {
		return &Error{Code: ErrCodeApply, Message: fmt.Sprintf("failed to apply %d updates", len(updates)), Err: err}
	}
	if len(changes) == 0 {
		return nil
	}

	out := e.clock.Commit(changes)
	e.logger.Debug("transaction committed", "seq", out.Seq, "updates", len(updates), "changes", len(changes))

	if e.callback != nil {
		for _, c := range changes {
			weight := 1
			if c.Kind == ir.Delete {
				weight = -1
			}
			e.callback(c.Rel, c.Value, weight)
		}
	}

	if err := e.publish(out); err != nil {
		return &Error{Code: ErrCodePublish, Message: "stream subscriber rejected transaction", Seq: out.Seq, Err: err}
	}
	return nil
}

// OnCompleted is a no-op: a single producer finishing does not stop the
// engine, which may have other producers. Implements observe.Observer.
func (e *Engine) OnCompleted() error {
	return nil
}

// publish delivers txn to every stream. Caller holds e.mu.
func (e *Engine) publish(txn ir.Txn) error {
	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, s := range e.streams {
		g.Go(func() error {
			return s.deliver(txn)
		})
	}
	return g.Wait()
}

// Contents returns the present facts of rel, ordered by value.
func (e *Engine) Contents(ctx context.Context, rel ir.RelID) ([]ir.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, observe.ErrClosed
	}
	return e.store.Contents(ctx, rel)
}

// Close stops the engine: every stream signals completion to its subscriber
// and closes it when it is an io.Closer, then the store is closed.
// Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for _, s := range e.streams {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	e.logger.Debug("engine stopped", "streams", len(e.streams))
	return errors.Join(errs...)
}

// closeObserver signals completion to o and closes it if it owns resources.
func closeObserver(o observe.Observer) error {
	var errs []error
	if err := o.OnCompleted(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := o.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
