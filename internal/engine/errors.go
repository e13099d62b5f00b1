package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ddnet/internal/ir"
)

// Error represents an error detected while starting or running the engine.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the sequence number of the transaction being published, if any.
	Seq int64

	// Path lists the relations of a rule cycle.
	Path []ir.RelID

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeStart indicates the engine could not be started.
	ErrCodeStart ErrorCode = "ENGINE_START"

	// ErrCodeApply indicates a transaction could not be applied to the store.
	ErrCodeApply ErrorCode = "APPLY_FAILED"

	// ErrCodePublish indicates a stream subscriber rejected a transaction.
	ErrCodePublish ErrorCode = "PUBLISH_FAILED"

	// ErrCodeRuleCycle indicates the program's rules form a cycle.
	ErrCodeRuleCycle ErrorCode = "RULE_CYCLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Seq != 0 {
		msg = fmt.Sprintf("%s (seq=%d)", msg, e.Seq)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsStartError returns true if the engine failed to start.
// Uses errors.As to handle wrapped errors.
func IsStartError(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeStart
	}
	return false
}

// IsRuleCycle returns true if the error reports a cyclic program.
func IsRuleCycle(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeRuleCycle
	}
	return false
}
