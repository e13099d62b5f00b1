package realize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/ddnet/internal/schema"
)

// ErrorKind categorizes realization failures.
type ErrorKind string

const (
	// KindConfigConflict indicates an ambiguous redirect: one source
	// relation consumed by several local relations.
	KindConfigConflict ErrorKind = "CONFIG_CONFLICT"

	// KindConnection indicates an outbound peer could not be reached
	// before the retry deadline.
	KindConnection ErrorKind = "CONNECTION"

	// KindIO indicates a sink or source file could not be opened, or the
	// receiver address could not be bound.
	KindIO ErrorKind = "IO"

	// KindSubscription indicates a collaborator refused a subscribe or
	// register call.
	KindSubscription ErrorKind = "SUBSCRIPTION"

	// KindEngineStart indicates the engine could not be started.
	KindEngineStart ErrorKind = "ENGINE_START"
)

// Stage names the orchestration step that failed.
type Stage string

const (
	StageRedirects Stage = "redirects"
	StageEngine    Stage = "engine"
	StageConnect   Stage = "connect"
	StageSink      Stage = "sink"
	StageMux       Stage = "multiplexer"
	StageReceiver  Stage = "receiver"
	StageSource    Stage = "source"
)

// Error describes why a node could not be realized.
type Error struct {
	Kind  ErrorKind
	Stage Stage

	// Node is the logical node being realized.
	Node schema.NodeID

	// Addr is the remote peer (connect) or local address (receiver), if any.
	Addr schema.Addr

	// Path is the file involved, if any.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Stage)
	if e.Node != uuid.Nil {
		fmt.Fprintf(&b, " node=%s", e.Node)
	}
	if e.Addr != "" {
		fmt.Fprintf(&b, " addr=%s", e.Addr)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func kindOf(err error) (ErrorKind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// IsConnectionError returns true if a peer could not be reached.
// Uses errors.As to handle wrapped errors.
func IsConnectionError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConnection
}

// IsConfigConflict returns true if the configuration was rejected as
// ambiguous.
func IsConfigConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConfigConflict
}

// IsRetryable returns true if retrying the same call may succeed without
// changing the configuration: only unreachable peers qualify.
func IsRetryable(err error) bool {
	return IsConnectionError(err)
}
