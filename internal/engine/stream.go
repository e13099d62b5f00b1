package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
)

// Stream is the engine's output restricted to a set of relations. It owns
// its subscriber: closing the engine closes it.
type Stream struct {
	engine *Engine
	rels   ir.RelSet

	mu       sync.Mutex
	observer observe.Observer
	closed   bool
}

// Relations returns the relation ids the stream carries, ascending.
func (s *Stream) Relations() []ir.RelID {
	return s.rels.Sorted()
}

// Subscribe attaches o. When the engine was started with replay, o first
// receives the current contents of the stream's relations.
// Implements observe.Observable.
func (s *Stream) Subscribe(o observe.Observer) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.engine.closed {
		return observe.ErrClosed
	}
	if s.observer != nil {
		return observe.ErrAlreadySubscribed
	}

	if s.engine.replay {
		snapshot, err := s.engine.store.Snapshot(context.Background(), s.rels)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if len(snapshot) > 0 {
			if err := o.OnTxn(s.engine.clock.Snapshot(snapshot)); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
		}
	}

	s.observer = o
	return nil
}

// Unsubscribe detaches the subscriber without closing it.
// Implements observe.Observable.
func (s *Stream) Unsubscribe() observe.Observer {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.observer
	s.observer = nil
	return o
}

func (s *Stream) deliver(txn ir.Txn) error {
	restricted := txn.Restrict(s.rels)
	if restricted.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.observer == nil {
		return nil
	}
	if err := s.observer.OnTxn(restricted); err != nil {
		return fmt.Errorf("stream %v: %w", s.rels.Sorted(), err)
	}
	return nil
}

func (s *Stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	o := s.observer
	s.observer = nil
	if o == nil {
		return nil
	}
	if err := closeObserver(o); err != nil {
		return fmt.Errorf("stream %v: %w", s.rels.Sorted(), err)
	}
	return nil
}
