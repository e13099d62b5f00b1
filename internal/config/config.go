package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/schema"
)

// Topology is a loaded configuration.
type Topology struct {
	System     schema.SysCfg
	Assignment schema.Assignment
	Rules      []ir.Rule
}

// Unassigned returns the configured nodes that have no address, sorted.
func (t *Topology) Unassigned() []schema.NodeID {
	var ids []schema.NodeID
	for _, id := range t.System.NodeIDs() {
		if _, ok := t.Assignment[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// document is the format-independent shape every loader decodes into.
type document struct {
	Nodes map[string]nodeDoc `json:"nodes" yaml:"nodes"`
	Rules []ir.Rule          `json:"rules" yaml:"rules"`
}

type nodeDoc struct {
	Address   string                    `json:"address,omitempty" yaml:"address,omitempty"`
	Relations map[string][]directiveDoc `json:"relations,omitempty" yaml:"relations,omitempty"`
}

type directiveDoc struct {
	Input  *int64  `json:"input,omitempty" yaml:"input,omitempty"`
	Source *string `json:"source,omitempty" yaml:"source,omitempty"`
	Sink   *string `json:"sink,omitempty" yaml:"sink,omitempty"`
}

// Load reads the topology in path, choosing the format by extension.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, File: path, Message: "cannot read config", Err: err}
	}
	return Parse(path, data)
}

// Parse decodes data as the format implied by name's extension.
func Parse(name string, data []byte) (*Topology, error) {
	var (
		doc *document
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		doc, err = decodeYAML(name, data)
	case ".cue", ".json":
		doc, err = decodeCUE(name, data)
	case ".hcl":
		doc, err = decodeHCL(name, data)
	default:
		return nil, &LoadError{
			Code:    ErrCodeUnsupportedFormat,
			File:    name,
			Message: fmt.Sprintf("unsupported config extension %q (want .yaml, .yml, .cue, .json or .hcl)", ext),
		}
	}
	if err != nil {
		return nil, err
	}
	return build(name, doc)
}

// build validates doc and converts it to a Topology.
func build(file string, doc *document) (*Topology, error) {
	topo := &Topology{
		System:     make(schema.SysCfg, len(doc.Nodes)),
		Assignment: make(schema.Assignment),
	}

	keys := make([]string, 0, len(doc.Nodes))
	for k := range doc.Nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		node := doc.Nodes[key]
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidNodeID, File: file, Message: fmt.Sprintf("node %q: not a UUID", key), Err: err}
		}
		if _, dup := topo.System[id]; dup {
			return nil, &LoadError{Code: ErrCodeInvalidNodeID, File: file, Message: fmt.Sprintf("node %s declared twice", id)}
		}

		cfg, err := buildNode(file, id, node)
		if err != nil {
			return nil, err
		}
		topo.System[id] = cfg

		if node.Address != "" {
			addr := schema.Addr(node.Address)
			if err := addr.Validate(); err != nil {
				return nil, &LoadError{Code: ErrCodeInvalidAddress, File: file, Message: fmt.Sprintf("node %s: %v", id, err), Err: err}
			}
			topo.Assignment[id] = addr
		}
	}

	for i, r := range doc.Rules {
		if r.Head < 0 || r.Body < 0 {
			return nil, &LoadError{Code: ErrCodeInvalidRule, File: file, Message: fmt.Sprintf("rule %d: relation ids must be non-negative", i)}
		}
	}
	topo.Rules = doc.Rules
	return topo, nil
}

func buildNode(file string, id schema.NodeID, node nodeDoc) (schema.NodeCfg, error) {
	cfg := make(schema.NodeCfg, len(node.Relations))
	for key, directives := range node.Relations {
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil || n < 0 {
			return nil, &LoadError{Code: ErrCodeInvalidRelation, File: file, Message: fmt.Sprintf("node %s: relation %q: not a non-negative integer", id, key)}
		}
		rel := ir.RelID(n)
		cfg.Declare(rel)

		for i, d := range directives {
			rc, err := d.relCfg()
			if err != nil {
				return nil, &LoadError{Code: ErrCodeInvalidDirective, File: file, Message: fmt.Sprintf("node %s: relation %d: directive %d: %v", id, rel, i, err)}
			}
			cfg.Add(rel, rc)
		}
	}
	return cfg, nil
}

func (d directiveDoc) relCfg() (schema.RelCfg, error) {
	set := 0
	if d.Input != nil {
		set++
	}
	if d.Source != nil {
		set++
	}
	if d.Sink != nil {
		set++
	}
	if set != 1 {
		return schema.RelCfg{}, fmt.Errorf("want exactly one of input, source, sink; got %d", set)
	}

	switch {
	case d.Input != nil:
		if *d.Input < 0 {
			return schema.RelCfg{}, fmt.Errorf("input relation %d is negative", *d.Input)
		}
		return schema.Input(ir.RelID(*d.Input)), nil
	case d.Source != nil:
		if *d.Source == "" {
			return schema.RelCfg{}, fmt.Errorf("empty source path")
		}
		return schema.Source(*d.Source), nil
	default:
		if *d.Sink == "" {
			return schema.RelCfg{}, fmt.Errorf("empty sink path")
		}
		return schema.Sink(*d.Sink), nil
	}
}
