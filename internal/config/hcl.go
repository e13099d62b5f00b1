package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/roach88/ddnet/internal/ir"
)

// hclFile is the top-level structure of an HCL topology.
type hclFile struct {
	Nodes []*hclNode `hcl:"node,block"`
	Rules []*hclRule `hcl:"rule,block"`
}

type hclNode struct {
	ID        string         `hcl:"id,label"`
	Address   string         `hcl:"address,optional"`
	Relations []*hclRelation `hcl:"relation,block"`
}

type hclRelation struct {
	ID      string   `hcl:"id,label"`
	Inputs  []int64  `hcl:"inputs,optional"`
	Sources []string `hcl:"sources,optional"`
	Sinks   []string `hcl:"sinks,optional"`
}

type hclRule struct {
	Head int64 `hcl:"head"`
	Body int64 `hcl:"body"`
}

func decodeHCL(file string, data []byte) (*document, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(data, file)
	if diags.HasErrors() {
		return nil, hclLoadError(file, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(f.Body, nil, &parsed); diags.HasErrors() {
		return nil, hclLoadError(file, diags)
	}

	doc := &document{Nodes: make(map[string]nodeDoc, len(parsed.Nodes))}
	for _, n := range parsed.Nodes {
		if _, dup := doc.Nodes[n.ID]; dup {
			return nil, &LoadError{
				Code:    ErrCodeInvalidNodeID,
				File:    file,
				Message: fmt.Sprintf("node %q declared twice", n.ID),
			}
		}
		nd := nodeDoc{Address: n.Address, Relations: make(map[string][]directiveDoc, len(n.Relations))}
		for _, r := range n.Relations {
			ds := nd.Relations[r.ID]
			for _, in := range r.Inputs {
				ds = append(ds, directiveDoc{Input: &in})
			}
			for _, src := range r.Sources {
				ds = append(ds, directiveDoc{Source: &src})
			}
			for _, sink := range r.Sinks {
				ds = append(ds, directiveDoc{Sink: &sink})
			}
			nd.Relations[r.ID] = ds
		}
		doc.Nodes[n.ID] = nd
	}
	for _, r := range parsed.Rules {
		doc.Rules = append(doc.Rules, ir.Rule{Head: ir.RelID(r.Head), Body: ir.RelID(r.Body)})
	}
	return doc, nil
}

func hclLoadError(file string, diags hcl.Diagnostics) *LoadError {
	le := &LoadError{Code: ErrCodeParseFailed, File: file, Message: diags.Error(), Err: diags}
	for _, d := range diags {
		if d.Subject != nil {
			le.Line = d.Subject.Start.Line
			break
		}
	}
	return le
}
