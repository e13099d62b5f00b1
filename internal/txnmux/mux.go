// Package txnmux implements the transaction multiplexer: a fan-in point that
// accepts transactions from any number of input sources and applies them,
// one at a time and in arrival order, to a single subscribed consumer.
//
// Every source pushes from its own goroutine into a FIFO queue. One writer
// goroutine drains the queue, so the consumer never sees two transactions
// in flight. No ordering across sources is promised beyond first-arrived,
// first-applied.
package txnmux

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
)

// Mux multiplexes input sources into one consumer.
//
// Thread-safety model:
//   - Subscribe, AddSource, Stats and Close are safe from any goroutine
//   - The consumer is only ever called from the writer goroutine
//
// A Mux owns its consumer and every registered source: Close closes them all.
type Mux struct {
	mu       sync.Mutex
	consumer observe.Observer
	inputs   []*input
	closed   bool

	queue *txnQueue
	done  chan struct{} // closed when the writer goroutine exits

	applied atomic.Int64
	failed  atomic.Int64

	logger *slog.Logger
}

// Option allows configuration of multiplexer parameters.
type Option func(*Mux)

// WithLogger sets the logger used by the multiplexer.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mux) {
		m.logger = logger
	}
}

// New creates a multiplexer with no consumer and no sources.
func New(opts ...Option) *Mux {
	m := &Mux{
		queue: newTxnQueue(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "txnmux")
	}
	return m
}

// Subscribe attaches the consumer and starts applying queued transactions.
// Only one consumer may be attached.
func (m *Mux) Subscribe(consumer observe.Observer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return observe.ErrClosed
	}
	if m.consumer != nil {
		return observe.ErrAlreadySubscribed
	}

	m.consumer = consumer
	go m.run(consumer)
	return nil
}

// AddSource subscribes the multiplexer to src. Transactions src produces are
// queued for the consumer. On success the multiplexer owns src.
func (m *Mux) AddSource(src observe.Observable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return observe.ErrClosed
	}

	in := &input{id: len(m.inputs), mux: m, src: src}
	if err := src.Subscribe(in); err != nil {
		return fmt.Errorf("subscribe to source %d: %w", in.id, err)
	}
	m.inputs = append(m.inputs, in)
	m.logger.Debug("source registered", "source", in.id)
	return nil
}

// Stats reports how many transactions were applied and how many the
// consumer rejected.
func (m *Mux) Stats() (applied, failed int64) {
	return m.applied.Load(), m.failed.Load()
}

// run is the single writer. It exits once the queue is closed and drained.
//
// Consumer errors are logged and processing continues: a rejected batch
// from one source must not stop the others.
func (m *Mux) run(consumer observe.Observer) {
	defer close(m.done)

	for {
		it, ok := m.queue.TryDequeue()
		if ok {
			m.apply(consumer, it)
			continue
		}
		if m.queue.Drained() {
			return
		}
		<-m.queue.Wait()
	}
}

func (m *Mux) apply(consumer observe.Observer, it item) {
	if err := consumer.OnTxn(it.txn); err != nil {
		m.failed.Add(1)
		m.logger.Error("transaction rejected",
			"source", it.source,
			"seq", it.txn.Seq,
			"updates", len(it.txn.Updates),
			"error", err,
		)
		return
	}
	m.applied.Add(1)
}

// Close tears the multiplexer down: sources are closed first (newest
// first) so nothing new arrives, queued transactions are applied, then the
// consumer is closed. Close is idempotent.
func (m *Mux) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	inputs := m.inputs
	consumer := m.consumer
	m.mu.Unlock()

	var errs []error
	for i := len(inputs) - 1; i >= 0; i-- {
		in := inputs[i]
		in.src.Unsubscribe()
		if c, ok := in.src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close source %d: %w", in.id, err))
			}
		}
	}

	m.queue.Close()
	if consumer == nil {
		if n := m.queue.Len(); n > 0 {
			m.logger.Warn("dropping transactions queued without a consumer", "count", n)
		}
		return errors.Join(errs...)
	}
	<-m.done

	if err := consumer.OnCompleted(); err != nil {
		errs = append(errs, fmt.Errorf("complete consumer: %w", err))
	}
	if c, ok := consumer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer: %w", err))
		}
	}

	applied, failed := m.Stats()
	m.logger.Debug("multiplexer closed", "sources", len(inputs), "applied", applied, "failed", failed)
	return errors.Join(errs...)
}

// input is the observer the multiplexer subscribes to each source.
type input struct {
	id        int
	mux       *Mux
	src       observe.Observable
	completed atomic.Bool
}

// OnTxn queues txn. Returns observe.ErrClosed once the multiplexer closed.
func (in *input) OnTxn(txn ir.Txn) error {
	if !in.mux.queue.Enqueue(item{source: in.id, txn: txn}) {
		return observe.ErrClosed
	}
	return nil
}

// OnCompleted marks the source finished. The consumer keeps running for the
// remaining sources.
func (in *input) OnCompleted() error {
	if in.completed.CompareAndSwap(false, true) {
		in.mux.logger.Debug("source completed", "source", in.id)
	}
	return nil
}
