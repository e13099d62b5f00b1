package realize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/roach88/ddnet/internal/engine"
	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
	"github.com/roach88/ddnet/internal/schema"
)

// world records every resource the fake ports hand out and which of them
// are still open.
type world struct {
	mu    sync.Mutex
	open  map[string]int
	log   []string
	fail  map[string]error
	dials map[schema.Addr]time.Duration

	engines []*fakeEngine
}

func newWorld() *world {
	return &world{
		open:  make(map[string]int),
		fail:  make(map[string]error),
		dials: make(map[schema.Addr]time.Duration),
	}
}

// failOn makes the operation named key fail.
func (w *world) failOn(key string) error {
	err := fmt.Errorf("injected failure: %s", key)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail[key] = err
	return err
}

func (w *world) check(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fail[key]
}

func (w *world) acquire(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open[name]++
	w.log = append(w.log, "open "+name)
}

func (w *world) release(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open[name]--
	if w.open[name] == 0 {
		delete(w.open, name)
	}
	w.log = append(w.log, "close "+name)
}

// Open returns the names of resources not yet closed, sorted.
func (w *world) Open() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.open))
	for n := range w.open {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Log returns the open/close events in order.
func (w *world) Log() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.log...)
}

func (w *world) ports() Ports {
	return Ports{
		StartEngine: func(workers int, replay bool, _ engine.Callback) (Engine, error) {
			if err := w.check("engine"); err != nil {
				return nil, err
			}
			e := &fakeEngine{world: w, workers: workers, replay: replay}
			w.acquire("engine")
			w.mu.Lock()
			w.engines = append(w.engines, e)
			w.mu.Unlock()
			return e, nil
		},
		NewMux: func() Multiplexer {
			w.acquire("mux")
			return &fakeMux{world: w}
		},
		Dial: func(ctx context.Context, addr schema.Addr, timeout, interval time.Duration) (Channel, error) {
			w.mu.Lock()
			w.dials[addr] = timeout
			w.mu.Unlock()
			if err := w.check("dial:" + string(addr)); err != nil {
				return nil, err
			}
			name := "sender:" + string(addr)
			w.acquire(name)
			return &fakeChannel{world: w, name: name}, nil
		},
		Listen: func(addr schema.Addr, accept ir.RelSet) (Source, error) {
			if err := w.check("listen"); err != nil {
				return nil, err
			}
			name := "receiver:" + string(addr)
			w.acquire(name)
			return &fakeSource{world: w, name: name, accept: accept}, nil
		},
		CreateSink: func(path string) (Channel, error) {
			if err := w.check("sink:" + path); err != nil {
				return nil, err
			}
			name := "sink:" + path
			w.acquire(name)
			return &fakeChannel{world: w, name: name}, nil
		},
		OpenSource: func(path string) (Source, error) {
			if err := w.check("source:" + path); err != nil {
				return nil, err
			}
			name := "source:" + path
			w.acquire(name)
			return &fakeSource{world: w, name: name}, nil
		},
	}
}

type fakeEngine struct {
	world   *world
	workers int
	replay  bool

	mu        sync.Mutex
	redirects map[ir.RelID]ir.RelID
	streams   []*fakeStream
	closed    bool
}

func (e *fakeEngine) OnTxn(ir.Txn) error { return nil }
func (e *fakeEngine) OnCompleted() error { return nil }

func (e *fakeEngine) Redirect(m map[ir.RelID]ir.RelID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.redirects = m
}

func (e *fakeEngine) Stream(rels ir.RelSet) observe.Observable {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &fakeStream{engine: e, rels: rels}
	e.streams = append(e.streams, s)
	return s
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []error
	for _, s := range e.streams {
		if c, ok := s.observer.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	e.world.release("engine")
	return errors.Join(errs...)
}

// Subscriptions returns the relation sets of subscribed streams keyed by
// the subscriber's resource name.
func (e *fakeEngine) Subscriptions() map[string][]ir.RelID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]ir.RelID)
	for _, s := range e.streams {
		if ch, ok := s.observer.(*fakeChannel); ok {
			out[ch.name] = s.rels.Sorted()
		}
	}
	return out
}

type fakeStream struct {
	engine   *fakeEngine
	rels     ir.RelSet
	observer observe.Observer
}

func (s *fakeStream) Subscribe(o observe.Observer) error {
	if ch, ok := o.(*fakeChannel); ok {
		if err := s.engine.world.check("subscribe:" + ch.name); err != nil {
			return err
		}
	}
	s.observer = o
	return nil
}

func (s *fakeStream) Unsubscribe() observe.Observer {
	o := s.observer
	s.observer = nil
	return o
}

type fakeChannel struct {
	world  *world
	name   string
	closed bool
}

func (c *fakeChannel) OnTxn(ir.Txn) error { return nil }
func (c *fakeChannel) OnCompleted() error { return nil }

func (c *fakeChannel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.world.release(c.name)
	return nil
}

type fakeSource struct {
	world    *world
	name     string
	accept   ir.RelSet
	observer observe.Observer
	closed   bool
}

func (s *fakeSource) Subscribe(o observe.Observer) error {
	s.observer = o
	return nil
}

func (s *fakeSource) Unsubscribe() observe.Observer {
	o := s.observer
	s.observer = nil
	return o
}

func (s *fakeSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.world.release(s.name)
	return nil
}

type fakeMux struct {
	world    *world
	consumer observe.Observer
	sources  []observe.Observable
	closed   bool
}

func (m *fakeMux) Subscribe(o observe.Observer) error {
	if err := m.world.check("mux-subscribe"); err != nil {
		return err
	}
	m.consumer = o
	return nil
}

func (m *fakeMux) AddSource(src observe.Observable) error {
	if fs, ok := src.(*fakeSource); ok {
		if err := m.world.check("register:" + fs.name); err != nil {
			return err
		}
	}
	m.sources = append(m.sources, src)
	return nil
}

func (m *fakeMux) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	for i := len(m.sources) - 1; i >= 0; i-- {
		if c, ok := m.sources[i].(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	if c, ok := m.consumer.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	m.world.release("mux")
	return errors.Join(errs...)
}
