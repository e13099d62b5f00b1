package files

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
)

// Source reads a transaction file and produces its documents in order.
// Implements observe.Observable and io.Closer.
//
// Reading starts when an observer subscribes and runs on its own goroutine.
// After the last document the observer receives OnCompleted.
type Source struct {
	path   string
	file   *os.File
	logger *slog.Logger

	mu       sync.Mutex
	observer observe.Observer
	started  bool
	closed   bool
	err      error

	stop chan struct{}
	done chan struct{}
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithLogger sets the logger used by the source.
func WithLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) {
		s.logger = logger
	}
}

// OpenSource opens path for reading. The file must exist.
func OpenSource(path string, opts ...SourceOption) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &Source{
		path: path,
		file: f,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "files", "path", path)
	}
	return s, nil
}

// Path returns the file the source reads.
func (s *Source) Path() string {
	return s.path
}

// Subscribe attaches o and starts reading. A source is read once; a later
// subscriber after Unsubscribe receives only the remaining documents.
// Implements observe.Observable.
func (s *Source) Subscribe(o observe.Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return observe.ErrClosed
	}
	if s.observer != nil {
		return observe.ErrAlreadySubscribed
	}
	s.observer = o
	if !s.started {
		s.started = true
		go s.read()
	}
	return nil
}

// Unsubscribe detaches the observer. Implements observe.Observable.
func (s *Source) Unsubscribe() observe.Observer {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.observer
	s.observer = nil
	return o
}

// Done is closed when reading has finished.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped reading early, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Source) read() {
	defer close(s.done)

	dec := yaml.NewDecoder(s.file)
	dec.KnownFields(true)

	count := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		var rec record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			var txn ir.Txn
			txn, err = rec.txn()
			if err == nil {
				count++
				err = s.emit(txn)
			}
		}
		if err != nil {
			if errors.Is(err, observe.ErrClosed) || isStopped(s.stop) {
				return
			}
			s.fail(fmt.Errorf("%s: document %d: %w", s.path, count+1, err))
			break
		}
	}

	s.mu.Lock()
	o := s.observer
	s.mu.Unlock()
	if o != nil {
		if err := o.OnCompleted(); err != nil {
			s.logger.Error("completion failed", "error", err)
		}
	}
	s.logger.Debug("source drained", "transactions", count)
}

func (s *Source) emit(txn ir.Txn) error {
	if txn.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.observer == nil {
		s.logger.Debug("dropping transaction, no observer", "seq", txn.Seq)
		return nil
	}
	return s.observer.OnTxn(txn)
}

func (s *Source) fail(err error) {
	s.logger.Error("read failed", "error", err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func isStopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// Close stops reading and closes the file. Idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.observer = nil
	s.mu.Unlock()

	close(s.stop)
	err := s.file.Close()
	if started {
		<-s.done
	} else {
		close(s.done)
	}
	return err
}
