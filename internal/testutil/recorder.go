// Package testutil provides deterministic helpers shared by package tests:
// a recording observer, fixed logical node ids and free loopback addresses.
package testutil

import (
	"sync"

	"github.com/roach88/ddnet/internal/ir"
)

// Recorder is an observe.Observer and io.Closer that records everything it
// receives.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu        sync.Mutex
	txns      []ir.Txn
	completed int
	closed    int

	// Err, when set, is returned from OnTxn after recording.
	Err error
	// CloseErr, when set, is returned from Close.
	CloseErr error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnTxn records txn.
func (r *Recorder) OnTxn(txn ir.Txn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := ir.Txn{Seq: txn.Seq, Updates: append([]ir.Update(nil), txn.Updates...)}
	r.txns = append(r.txns, cp)
	return r.Err
}

// OnCompleted counts completion signals.
func (r *Recorder) OnCompleted() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	return nil
}

// Close counts Close calls.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return r.CloseErr
}

// Txns returns a copy of the recorded transactions in arrival order.
func (r *Recorder) Txns() []ir.Txn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Txn(nil), r.txns...)
}

// Updates returns every recorded update, flattened in arrival order.
func (r *Recorder) Updates() []ir.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ir.Update
	for _, txn := range r.txns {
		out = append(out, txn.Updates...)
	}
	return out
}

// Completed returns how many times OnCompleted was called.
func (r *Recorder) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Closed returns how many times Close was called.
func (r *Recorder) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Insert is shorthand for an insert update.
func Insert(rel ir.RelID, value string) ir.Update {
	return ir.Update{Kind: ir.Insert, Rel: rel, Value: ir.Value(value)}
}

// Delete is shorthand for a delete update.
func Delete(rel ir.RelID, value string) ir.Update {
	return ir.Update{Kind: ir.Delete, Rel: rel, Value: ir.Value(value)}
}
