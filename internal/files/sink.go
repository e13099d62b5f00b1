package files

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
)

// Sink appends every transaction it observes to a file.
// Implements observe.Observer and io.Closer.
type Sink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	buf    *bufio.Writer
	enc    *yaml.Encoder
	docs   int
	closed bool
}

// CreateSink creates path, truncating any existing content.
func CreateSink(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	return &Sink{path: path, file: f, buf: buf, enc: enc}, nil
}

// Path returns the file the sink writes.
func (s *Sink) Path() string {
	return s.path
}

// OnTxn writes txn as one document. Empty transactions are skipped.
func (s *Sink) OnTxn(txn ir.Txn) error {
	if txn.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return observe.ErrClosed
	}
	if err := s.enc.Encode(toRecord(txn)); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.docs++
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// OnCompleted flushes buffered output.
func (s *Sink) OnCompleted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	return s.buf.Flush()
}

// Close flushes and closes the file. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// The encoder only opens a YAML stream on its first document.
	if s.docs > 0 {
		if err := s.enc.Close(); err != nil {
			s.file.Close()
			return fmt.Errorf("close %s: %w", s.path, err)
		}
	}
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return s.file.Close()
}
