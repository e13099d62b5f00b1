package realize

import (
	"sort"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/schema"
)

// Outputs maps a remote address to the local relations streamed to it.
type Outputs map[schema.Addr]ir.RelSet

// Addrs returns the destination addresses in ascending order.
func (o Outputs) Addrs() []schema.Addr {
	addrs := make([]schema.Addr, 0, len(o))
	for addr := range o {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Bindings maps a file path to the relations bound to it.
type Bindings map[string]ir.RelSet

// Paths returns the file paths in lexicographic order.
func (b Bindings) Paths() []string {
	paths := make([]string, 0, len(b))
	for p := range b {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// OutputIndex records, for every relation id, the addresses hosting a node
// that declares it as an input. Build it once per system and query it for
// every local node.
type OutputIndex map[ir.RelID]map[schema.Addr]struct{}

// NewOutputIndex indexes every Input directive of sys by the address of
// the node declaring it. Nodes missing from asg are ignored.
func NewOutputIndex(sys schema.SysCfg, asg schema.Assignment) OutputIndex {
	idx := make(OutputIndex)
	for id, cfg := range sys {
		addr, ok := asg[id]
		if !ok {
			continue
		}
		for _, cfgs := range cfg {
			for _, c := range cfgs {
				src, ok := c.InputRel()
				if !ok {
					continue
				}
				if idx[src] == nil {
					idx[src] = make(map[schema.Addr]struct{})
				}
				idx[src][addr] = struct{}{}
			}
		}
	}
	return idx
}

// Outputs returns, for a node at addr configured by cfg, the relations of
// cfg requested by nodes at other addresses. The result never contains
// addr: co-located consumers are not reached over the network.
func (idx OutputIndex) Outputs(addr schema.Addr, cfg schema.NodeCfg) Outputs {
	out := make(Outputs)
	for rel := range cfg {
		for dst := range idx[rel] {
			if dst == addr {
				continue
			}
			if out[dst] == nil {
				out[dst] = make(ir.RelSet)
			}
			out[dst].Add(rel)
		}
	}
	return out
}

// DeduceOutputs computes the outputs of the node at addr configured by cfg
// against the whole system. Callers deducing for several nodes should
// build an OutputIndex once instead.
func DeduceOutputs(addr schema.Addr, cfg schema.NodeCfg, sys schema.SysCfg, asg schema.Assignment) Outputs {
	return NewOutputIndex(sys, asg).Outputs(addr, cfg)
}

// DeduceRedirects maps every relation declared as Input(s) under relation
// r to r. Relations are visited in ascending order, so when several
// relations consume the same s the highest one wins; see
// schema.NodeCfg.Conflicts.
func DeduceRedirects(cfg schema.NodeCfg) map[ir.RelID]ir.RelID {
	redirects := make(map[ir.RelID]ir.RelID)
	for _, rel := range cfg.RelIDs() {
		for _, c := range cfg[rel] {
			if src, ok := c.InputRel(); ok {
				redirects[src] = rel
			}
		}
	}
	return redirects
}

// DeduceSinks groups the relations of cfg by the file they are written to.
func DeduceSinks(cfg schema.NodeCfg) Bindings {
	return deduceFiles(cfg, schema.KindSink)
}

// DeduceSources groups the relations of cfg by the file they are read from.
func DeduceSources(cfg schema.NodeCfg) Bindings {
	return deduceFiles(cfg, schema.KindSource)
}

func deduceFiles(cfg schema.NodeCfg, kind schema.RelCfgKind) Bindings {
	b := make(Bindings)
	for rel, cfgs := range cfg {
		for _, c := range cfgs {
			if c.Kind() != kind {
				continue
			}
			path, _ := c.Path()
			if b[path] == nil {
				b[path] = make(ir.RelSet)
			}
			b[path].Add(rel)
		}
	}
	return b
}
