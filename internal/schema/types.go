package schema

import (
	"bytes"
	"fmt"
	"net"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/ddnet/internal/ir"
)

// NodeID identifies a logical node. It carries no ordering semantics beyond
// identity; byte order is used only to make iteration reproducible.
type NodeID = uuid.UUID

// Addr is the network endpoint ("host:port") of one running process.
type Addr string

// Validate checks that the address has a host and a port.
func (a Addr) Validate() error {
	if a == "" {
		return fmt.Errorf("empty address")
	}
	if _, _, err := net.SplitHostPort(string(a)); err != nil {
		return fmt.Errorf("invalid address %q: %w", string(a), err)
	}
	return nil
}

// String implements fmt.Stringer.
func (a Addr) String() string {
	return string(a)
}

// RelCfgKind tags the RelCfg variant.
type RelCfgKind uint8

const (
	// KindInput forwards updates produced under another relation id.
	KindInput RelCfgKind = iota + 1
	// KindSource reads the relation from a file.
	KindSource
	// KindSink writes the relation to a file.
	KindSink
)

func (k RelCfgKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindSource:
		return "source"
	case KindSink:
		return "sink"
	default:
		return fmt.Sprintf("relcfg(%d)", uint8(k))
	}
}

// RelCfg is a directive attached to a relation id within a node
// configuration. Build values with Input, Source or Sink.
type RelCfg struct {
	kind  RelCfgKind
	input ir.RelID
	path  string
}

// Input returns a directive populating the relation from updates produced
// under source, possibly on another node.
func Input(source ir.RelID) RelCfg {
	return RelCfg{kind: KindInput, input: source}
}

// Source returns a directive populating the relation from the file at path.
func Source(path string) RelCfg {
	return RelCfg{kind: KindSource, path: path}
}

// Sink returns a directive writing the relation's output to the file at path.
func Sink(path string) RelCfg {
	return RelCfg{kind: KindSink, path: path}
}

// Kind returns the variant tag.
func (c RelCfg) Kind() RelCfgKind { return c.kind }

// InputRel returns the source relation id of an Input directive.
func (c RelCfg) InputRel() (ir.RelID, bool) {
	return c.input, c.kind == KindInput
}

// Path returns the file descriptor of a Source or Sink directive.
func (c RelCfg) Path() (string, bool) {
	return c.path, c.kind == KindSource || c.kind == KindSink
}

func (c RelCfg) String() string {
	switch c.kind {
	case KindInput:
		return fmt.Sprintf("Input(%d)", c.input)
	case KindSource:
		return fmt.Sprintf("Source(%q)", c.path)
	case KindSink:
		return fmt.Sprintf("Sink(%q)", c.path)
	default:
		return c.kind.String()
	}
}

// NodeCfg maps each relation id of a logical node to its set of directives.
// A relation may be present with no directives at all, which only exposes
// it to other nodes.
type NodeCfg map[ir.RelID][]RelCfg

// Add attaches cfg to rel unless an identical directive is already present.
func (c NodeCfg) Add(rel ir.RelID, cfgs ...RelCfg) {
	existing := c[rel]
	if existing == nil {
		existing = []RelCfg{}
	}
	for _, cfg := range cfgs {
		if !containsCfg(existing, cfg) {
			existing = append(existing, cfg)
		}
	}
	c[rel] = existing
}

// Declare registers rel with no directives.
func (c NodeCfg) Declare(rel ir.RelID) {
	if _, ok := c[rel]; !ok {
		c[rel] = []RelCfg{}
	}
}

// RelIDs returns the declared relation ids in ascending order.
func (c NodeCfg) RelIDs() []ir.RelID {
	ids := make([]ir.RelID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Conflict describes a source relation consumed by more than one local
// relation, which makes the redirect target ambiguous.
type Conflict struct {
	Source  ir.RelID
	Targets []ir.RelID // ascending
}

func (c Conflict) Error() string {
	return fmt.Sprintf("relation %d is declared as input of relations %v", c.Source, c.Targets)
}

// Conflicts returns every ambiguous Input source, ordered by source id.
func (c NodeCfg) Conflicts() []Conflict {
	targets := make(map[ir.RelID][]ir.RelID)
	for _, rel := range c.RelIDs() {
		for _, cfg := range c[rel] {
			if src, ok := cfg.InputRel(); ok {
				targets[src] = append(targets[src], rel)
			}
		}
	}

	var conflicts []Conflict
	for src, rels := range targets {
		if len(rels) > 1 {
			conflicts = append(conflicts, Conflict{Source: src, Targets: rels})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Source < conflicts[j].Source })
	return conflicts
}

// SysCfg is the full declarative topology: one NodeCfg per logical node.
type SysCfg map[NodeID]NodeCfg

// NodeIDs returns the logical node ids in byte order.
func (s SysCfg) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sortNodeIDs(ids)
	return ids
}

// Assignment maps logical nodes to the physical address hosting them.
type Assignment map[NodeID]Addr

// NodesAt returns, in byte order, every logical node assigned to addr.
func (a Assignment) NodesAt(addr Addr) []NodeID {
	var ids []NodeID
	for id, assigned := range a {
		if assigned == addr {
			ids = append(ids, id)
		}
	}
	sortNodeIDs(ids)
	return ids
}

// Addrs returns the distinct assigned addresses in ascending order.
func (a Assignment) Addrs() []Addr {
	seen := make(map[Addr]struct{})
	var addrs []Addr
	for _, addr := range a {
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func sortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}

func containsCfg(cfgs []RelCfg, cfg RelCfg) bool {
	for _, c := range cfgs {
		if c == cfg {
			return true
		}
	}
	return false
}
