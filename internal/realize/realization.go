package realize

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/roach88/ddnet/internal/schema"
)

// Realization is one running node pipeline. It owns the multiplexer and,
// through it, the engine, every sender, sink, receiver and source.
//
// Close is the only operation. A Realization that becomes unreachable
// without being closed is closed by the garbage collector; callers should
// not rely on that.
type Realization struct {
	node    schema.NodeID
	mux     Multiplexer
	logger  *slog.Logger
	cleanup runtime.Cleanup

	once sync.Once
	err  error
}

func newRealization(node schema.NodeID, mux Multiplexer, logger *slog.Logger) *Realization {
	rz := &Realization{node: node, mux: mux, logger: logger}
	rz.cleanup = runtime.AddCleanup(rz, dropped, droppedRealization{node: node, mux: mux, logger: logger})
	return rz
}

// Close stops reading from sources and the receiver, applies what was
// already queued, stops the engine, and closes every sender and sink.
// Close is idempotent; later calls return the first result.
func (rz *Realization) Close() error {
	rz.once.Do(func() {
		rz.cleanup.Stop()
		rz.err = rz.mux.Close()
		if rz.err != nil {
			rz.logger.Warn("realization closed with errors", "error", rz.err)
			return
		}
		rz.logger.Info("realization closed")
	})
	return rz.err
}

// droppedRealization is what the cleanup needs; it must not reference the
// Realization itself.
type droppedRealization struct {
	node   schema.NodeID
	mux    Multiplexer
	logger *slog.Logger
}

func dropped(d droppedRealization) {
	d.logger.Warn("realization dropped without Close", "node", d.node)
	if err := d.mux.Close(); err != nil {
		d.logger.Warn("close dropped realization", "error", err)
	}
}
