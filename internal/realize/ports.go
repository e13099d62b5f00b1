package realize

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/ddnet/internal/engine"
	"github.com/roach88/ddnet/internal/files"
	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
	"github.com/roach88/ddnet/internal/schema"
	"github.com/roach88/ddnet/internal/tcpchan"
	"github.com/roach88/ddnet/internal/txnmux"
)

// Engine is the computation engine as seen by the orchestrator.
type Engine interface {
	observe.Observer
	io.Closer

	// Redirect installs the relabeling of incoming updates.
	Redirect(redirects map[ir.RelID]ir.RelID)

	// Stream returns the engine output restricted to rels.
	Stream(rels ir.RelSet) observe.Observable
}

// Multiplexer serializes transactions from many sources into one consumer.
// Close releases the consumer and every source.
type Multiplexer interface {
	Subscribe(consumer observe.Observer) error
	AddSource(src observe.Observable) error
	io.Closer
}

// Channel accepts transactions and owns an external resource.
type Channel interface {
	observe.Observer
	io.Closer
}

// Source produces transactions and owns an external resource.
type Source interface {
	observe.Observable
	io.Closer
}

// Ports bundles the constructors of every collaborator a Realizer uses.
type Ports struct {
	// StartEngine starts an engine instance.
	StartEngine func(workers int, replay bool, callback engine.Callback) (Engine, error)

	// NewMux creates an empty multiplexer.
	NewMux func() Multiplexer

	// Dial connects to a peer, retrying every interval until timeout.
	Dial func(ctx context.Context, addr schema.Addr, timeout, interval time.Duration) (Channel, error)

	// Listen binds a receiver on addr accepting only updates of accept.
	Listen func(addr schema.Addr, accept ir.RelSet) (Source, error)

	// CreateSink creates or truncates a file sink.
	CreateSink func(path string) (Channel, error)

	// OpenSource opens a file source.
	OpenSource func(path string) (Source, error)
}

// DefaultPorts wires the concrete engine, multiplexer, TCP and file
// packages. Every engine runs program.
func DefaultPorts(program *engine.Program, logger *slog.Logger) Ports {
	if logger == nil {
		logger = slog.Default()
	}
	return Ports{
		StartEngine: func(workers int, replay bool, callback engine.Callback) (Engine, error) {
			e, err := engine.Start(program, workers, replay, callback,
				engine.WithLogger(logger.With("component", "engine")))
			if err != nil {
				return nil, err
			}
			return engineAdapter{e}, nil
		},
		NewMux: func() Multiplexer {
			return txnmux.New(txnmux.WithLogger(logger.With("component", "txnmux")))
		},
		Dial: func(ctx context.Context, addr schema.Addr, timeout, interval time.Duration) (Channel, error) {
			s, err := tcpchan.DialWithRetry(ctx, string(addr), timeout, interval)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Listen: func(addr schema.Addr, accept ir.RelSet) (Source, error) {
			r, err := tcpchan.Listen(string(addr),
				tcpchan.AcceptOnly(accept),
				tcpchan.WithLogger(logger.With("component", "tcpchan", "addr", string(addr))))
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		CreateSink: func(path string) (Channel, error) {
			s, err := files.CreateSink(path)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		OpenSource: func(path string) (Source, error) {
			s, err := files.OpenSource(path, files.WithLogger(logger.With("component", "files", "path", path)))
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// engineAdapter exposes *engine.Engine through the Engine interface.
type engineAdapter struct {
	*engine.Engine
}

func (a engineAdapter) Stream(rels ir.RelSet) observe.Observable {
	return a.AddStream(rels)
}
