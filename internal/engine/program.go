package engine

import (
	"fmt"
	"sort"

	"github.com/roach88/ddnet/internal/ir"
)

// Program is the compiled, shared computation every node runs. It is a set
// of copy rules between relations; relations not mentioned by any rule are
// plain input/output relations.
type Program struct {
	rules []ir.Rule
	heads map[ir.RelID][]ir.RelID // body -> heads, ascending
}

// NewProgram compiles rules. Duplicate rules are collapsed; a rule cycle
// (including a self-loop) is an error because propagation would never reach
// a fixpoint under weight counting.
func NewProgram(rules ...ir.Rule) (*Program, error) {
	p := &Program{heads: make(map[ir.RelID][]ir.RelID)}
	seen := make(map[ir.Rule]bool)
	for _, r := range rules {
		if seen[r] {
			continue
		}
		seen[r] = true
		p.rules = append(p.rules, r)
		p.heads[r.Body] = append(p.heads[r.Body], r.Head)
	}
	for body := range p.heads {
		heads := p.heads[body]
		sort.Slice(heads, func(i, j int) bool { return heads[i] < heads[j] })
	}

	if cycle := p.findCycle(); cycle != nil {
		return nil, &Error{
			Code:    ErrCodeRuleCycle,
			Message: fmt.Sprintf("rules form a cycle through relations %v", cycle),
			Path:    cycle,
		}
	}
	return p, nil
}

// MustProgram is NewProgram for static rule sets; it panics on error.
func MustProgram(rules ...ir.Rule) *Program {
	p, err := NewProgram(rules...)
	if err != nil {
		panic(err)
	}
	return p
}

// Rules returns the compiled rules in declaration order.
func (p *Program) Rules() []ir.Rule {
	if p == nil {
		return nil
	}
	out := make([]ir.Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// derive returns the rule consequences of one round of changes.
func (p *Program) derive(changes []ir.Update) []ir.Update {
	if p == nil || len(p.heads) == 0 {
		return nil
	}
	var out []ir.Update
	for _, c := range changes {
		for _, head := range p.heads[c.Rel] {
			out = append(out, ir.Update{Kind: c.Kind, Rel: head, Value: c.Value})
		}
	}
	return out
}

// findCycle returns the relations of one cycle in the rule graph, or nil.
// Strongly connected components are found with Tarjan's algorithm; nodes are
// visited in ascending order so the reported cycle is reproducible.
func (p *Program) findCycle() []ir.RelID {
	var (
		index   = 0
		stack   []ir.RelID
		indices = make(map[ir.RelID]int)
		lowlink = make(map[ir.RelID]int)
		onStack = make(map[ir.RelID]bool)
		found   []ir.RelID
	)

	var strongConnect func(ir.RelID)
	strongConnect = func(v ir.RelID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range p.heads[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ir.RelID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if found == nil && (len(scc) > 1 || p.hasSelfLoop(v)) {
				sort.Slice(scc, func(i, j int) bool { return scc[i] < scc[j] })
				found = scc
			}
		}
	}

	bodies := make([]ir.RelID, 0, len(p.heads))
	for body := range p.heads {
		bodies = append(bodies, body)
	}
	sort.Slice(bodies, func(i, j int) bool { return bodies[i] < bodies[j] })

	for _, v := range bodies {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return found
}

func (p *Program) hasSelfLoop(v ir.RelID) bool {
	for _, w := range p.heads[v] {
		if w == v {
			return true
		}
	}
	return false
}
