package engine

import (
	"sync/atomic"

	"github.com/roach88/ddnet/internal/ir"
)

// Clock stamps the transactions an engine publishes.
//
// Each committed batch of changes takes the next seq. Snapshots replayed
// to a new stream carry the seq of the last commit they include, so a
// subscriber can order them against later transactions.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first commit is stamped 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock that resumes after seq start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Commit wraps changes in a transaction with the next seq.
func (c *Clock) Commit(changes []ir.Update) ir.Txn {
	return ir.Txn{Seq: c.seq.Add(1), Updates: changes}
}

// Snapshot wraps state in a transaction stamped with the last committed seq.
func (c *Clock) Snapshot(state []ir.Update) ir.Txn {
	return ir.Txn{Seq: c.seq.Load(), Updates: state}
}

// Last returns the seq of the last commit, or the start value.
func (c *Clock) Last() int64 {
	return c.seq.Load()
}
