package realize

import (
	"context"
	"errors"

	"github.com/roach88/ddnet/internal/engine"
	"github.com/roach88/ddnet/internal/schema"
)

// Instantiate realizes every node of sys assigned to addr, in node id
// order. Nodes assigned to addr but absent from sys are skipped.
//
// The call is atomic: on the first failure every realization already
// built is closed and only the error is returned. An address hosting no
// node yields an empty slice.
func (r *Realizer) Instantiate(ctx context.Context, sys schema.SysCfg, addr schema.Addr, asg schema.Assignment) ([]*Realization, error) {
	idx := NewOutputIndex(sys, asg)

	realized := make([]*Realization, 0)
	for _, node := range asg.NodesAt(addr) {
		cfg, ok := sys[node]
		if !ok {
			r.logger.Debug("assigned node has no configuration, skipping", "node", node, "addr", addr)
			continue
		}

		rz, err := r.Realize(ctx, node, addr, cfg, idx.Outputs(addr, cfg))
		if err != nil {
			if closeErr := CloseAll(realized); closeErr != nil {
				r.logger.Warn("teardown after failed instantiation", "error", closeErr)
			}
			return nil, err
		}
		realized = append(realized, rz)
	}

	r.logger.Info("address instantiated", "addr", addr, "nodes", len(realized))
	return realized, nil
}

// Instantiate realizes the nodes assigned to addr with the concrete
// engine, multiplexer, TCP and file implementations, every engine running
// program.
func Instantiate(ctx context.Context, program *engine.Program, sys schema.SysCfg, addr schema.Addr, asg schema.Assignment, opts ...Option) ([]*Realization, error) {
	return NewRealizer(DefaultPorts(program, nil), opts...).Instantiate(ctx, sys, addr, asg)
}

// CloseAll closes realizations in reverse order and joins the errors.
func CloseAll(realizations []*Realization) error {
	var errs []error
	for i := len(realizations) - 1; i >= 0; i-- {
		if err := realizations[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

