// Package observe defines the two capabilities every pipeline component is
// built from: producing transactions (Observable) and consuming them
// (Observer). The engine, the multiplexer, network channels and file
// adapters only ever see each other through these interfaces.
package observe

import (
	"errors"

	"github.com/roach88/ddnet/internal/ir"
)

// ErrAlreadySubscribed is returned by Subscribe when an observer is already
// attached. Every Observable has at most one subscriber.
var ErrAlreadySubscribed = errors.New("observable already has a subscriber")

// ErrClosed is returned when pushing into or subscribing to a closed
// component.
var ErrClosed = errors.New("component closed")

// Observer consumes transactions.
type Observer interface {
	// OnTxn applies one batch of updates as a single transaction.
	OnTxn(txn ir.Txn) error

	// OnCompleted signals that the producer will send nothing more.
	OnCompleted() error
}

// Observable produces transactions for a single subscriber.
type Observable interface {
	// Subscribe attaches o. Production may start as soon as it returns.
	Subscribe(o Observer) error

	// Unsubscribe detaches and returns the current observer, or nil.
	Unsubscribe() Observer
}

// Funcs adapts plain functions to Observer. Nil fields are no-ops.
type Funcs struct {
	Txn       func(ir.Txn) error
	Completed func() error
}

// OnTxn implements Observer.
func (f Funcs) OnTxn(txn ir.Txn) error {
	if f.Txn == nil {
		return nil
	}
	return f.Txn(txn)
}

// OnCompleted implements Observer.
func (f Funcs) OnCompleted() error {
	if f.Completed == nil {
		return nil
	}
	return f.Completed()
}
