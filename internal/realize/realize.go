package realize

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ddnet/internal/engine"
	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/schema"
)

// Realizer builds Realizations through a set of ports.
//
// A Realizer holds no per-node state and may be used from several
// goroutines.
type Realizer struct {
	ports           Ports
	workers         int
	connectTimeout  time.Duration
	connectInterval time.Duration
	strictRedirects bool
	logger          *slog.Logger
}

// NewRealizer creates a Realizer using ports.
func NewRealizer(ports Ports, opts ...Option) *Realizer {
	r := &Realizer{
		ports:           ports,
		workers:         DefaultWorkers,
		connectTimeout:  DefaultConnectTimeout,
		connectInterval: DefaultConnectInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "realize")
	}
	return r
}

// Realize wires the node configured by cfg at addr:
//
//  1. start an engine and install the node's redirects
//  2. connect a sender to every output address and subscribe it to the
//     engine stream of that address's relations
//  3. create every sink file and subscribe it likewise
//  4. put the engine behind a multiplexer
//  5. register a receiver bound to addr with the multiplexer
//  6. open every source file and register it with the multiplexer
//
// Peers are dialed concurrently, each retried until the connect timeout.
// On failure everything acquired so far is released and an *Error is
// returned.
func (r *Realizer) Realize(ctx context.Context, node schema.NodeID, addr schema.Addr, cfg schema.NodeCfg, outputs Outputs) (*Realization, error) {
	logger := r.logger.With("node", node, "addr", addr)

	redirects, err := r.redirects(node, cfg, logger)
	if err != nil {
		return nil, err
	}

	p := &partial{logger: logger}
	rz, err := r.realize(ctx, p, node, addr, cfg, redirects, outputs)
	if err != nil {
		if relErr := p.release(); relErr != nil {
			logger.Warn("release after failed realization", "error", relErr)
		}
		logger.Error("realization failed", "error", err)
		return nil, err
	}
	return rz, nil
}

func (r *Realizer) realize(ctx context.Context, p *partial, node schema.NodeID, addr schema.Addr, cfg schema.NodeCfg, redirects map[ir.RelID]ir.RelID, outputs Outputs) (*Realization, error) {
	eng, err := r.ports.StartEngine(r.workers, false, changeLogger(p.logger))
	if err != nil {
		return nil, &Error{Kind: KindEngineStart, Stage: StageEngine, Node: node, Err: err}
	}
	p.engine = eng
	eng.Redirect(redirects)

	// Outbound senders.
	addrs := outputs.Addrs()
	senders, err := r.connect(ctx, node, addrs)
	if err != nil {
		return nil, err
	}
	p.pending = senders
	for i, dst := range addrs {
		if err := eng.Stream(outputs[dst]).Subscribe(senders[i]); err != nil {
			return nil, &Error{Kind: KindSubscription, Stage: StageConnect, Node: node, Addr: dst, Err: err}
		}
		p.pending = p.pending[1:]
		p.logger.Debug("sender subscribed", "peer", dst, "relations", outputs[dst].Sorted())
	}

	// Sinks.
	sinks := DeduceSinks(cfg)
	for _, path := range sinks.Paths() {
		sink, err := r.ports.CreateSink(path)
		if err != nil {
			return nil, &Error{Kind: KindIO, Stage: StageSink, Node: node, Path: path, Err: err}
		}
		if err := eng.Stream(sinks[path]).Subscribe(sink); err != nil {
			p.closeQuietly(sink)
			return nil, &Error{Kind: KindSubscription, Stage: StageSink, Node: node, Path: path, Err: err}
		}
		p.logger.Debug("sink subscribed", "path", path, "relations", sinks[path].Sorted())
	}

	// Multiplexer in front of the engine.
	mux := r.ports.NewMux()
	p.mux = mux
	if err := mux.Subscribe(eng); err != nil {
		return nil, &Error{Kind: KindSubscription, Stage: StageMux, Node: node, Err: err}
	}
	p.engineInMux = true

	// Receiver.
	accept := make(ir.RelSet, len(redirects))
	for src := range redirects {
		accept.Add(src)
	}
	rcv, err := r.ports.Listen(addr, accept)
	if err != nil {
		return nil, &Error{Kind: KindIO, Stage: StageReceiver, Node: node, Addr: addr, Err: err}
	}
	if err := mux.AddSource(rcv); err != nil {
		p.closeQuietly(rcv)
		return nil, &Error{Kind: KindSubscription, Stage: StageReceiver, Node: node, Addr: addr, Err: err}
	}
	p.logger.Debug("receiver registered", "accepts", accept.Sorted())

	// Sources.
	sources := DeduceSources(cfg)
	for _, path := range sources.Paths() {
		src, err := r.ports.OpenSource(path)
		if err != nil {
			return nil, &Error{Kind: KindIO, Stage: StageSource, Node: node, Path: path, Err: err}
		}
		if err := mux.AddSource(src); err != nil {
			p.closeQuietly(src)
			return nil, &Error{Kind: KindSubscription, Stage: StageSource, Node: node, Path: path, Err: err}
		}
		p.logger.Debug("source registered", "path", path, "relations", sources[path].Sorted())
	}

	p.logger.Info("node realized",
		"peers", len(addrs),
		"sinks", len(sinks),
		"sources", len(sources),
		"redirects", len(redirects),
	)
	return newRealization(node, mux, p.logger), nil
}

// redirects deduces the node's redirect map and applies the conflict
// policy.
func (r *Realizer) redirects(node schema.NodeID, cfg schema.NodeCfg, logger *slog.Logger) (map[ir.RelID]ir.RelID, error) {
	conflicts := cfg.Conflicts()
	if len(conflicts) > 0 && r.strictRedirects {
		errs := make([]error, len(conflicts))
		for i, c := range conflicts {
			errs[i] = c
		}
		return nil, &Error{Kind: KindConfigConflict, Stage: StageRedirects, Node: node, Err: errors.Join(errs...)}
	}

	redirects := DeduceRedirects(cfg)
	for _, c := range conflicts {
		logger.Warn("ambiguous redirect, highest relation wins",
			"source", c.Source,
			"targets", c.Targets,
			"chosen", redirects[c.Source],
		)
	}
	return redirects, nil
}

// connect dials every address concurrently. Either every sender is
// returned, in addrs order, or none.
func (r *Realizer) connect(ctx context.Context, node schema.NodeID, addrs []schema.Addr) ([]Channel, error) {
	senders := make([]Channel, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	for i, dst := range addrs {
		g.Go(func() error {
			ch, err := r.ports.Dial(gctx, dst, r.connectTimeout, r.connectInterval)
			if err != nil {
				return &Error{Kind: KindConnection, Stage: StageConnect, Node: node, Addr: dst, Err: err}
			}
			senders[i] = ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, ch := range senders {
			if ch != nil {
				ch.Close()
			}
		}
		return nil, err
	}
	return senders, nil
}

// changeLogger reports every committed change at debug level.
func changeLogger(logger *slog.Logger) engine.Callback {
	return func(rel ir.RelID, value ir.Value, weight int) {
		logger.Debug("change", "rel", rel, "value", string(value), "weight", weight)
	}
}

// partial tracks what a failing Realize has to release.
type partial struct {
	logger *slog.Logger

	// engine is owned here until the multiplexer takes it.
	engine      Engine
	engineInMux bool

	// pending senders are connected but not yet owned by an engine stream.
	pending []Channel

	mux Multiplexer
}

// release closes, in order: unowned senders, then the multiplexer (which
// closes its sources and the engine), or the engine alone when no
// multiplexer owns it. The engine closes every subscribed sender and sink.
func (p *partial) release() error {
	var errs []error
	for _, ch := range p.pending {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.mux != nil {
		if err := p.mux.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.engine != nil && !p.engineInMux {
		if err := p.engine.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *partial) closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		p.logger.Warn("close after failed subscription", "error", err)
	}
}
