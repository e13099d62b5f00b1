package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/ddnet/internal/config"
	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/realize"
	"github.com/roach88/ddnet/internal/schema"
)

// DeduceOptions holds flags for the deduce command.
type DeduceOptions struct {
	*RootOptions
	Config string
	Addr   string
}

// Binding is a target (address or file) and the relations bound to it.
type Binding struct {
	Target    string     `json:"target"`
	Relations []ir.RelID `json:"relations"`
}

// Redirect is one relabeling rule.
type Redirect struct {
	From ir.RelID `json:"from"`
	To   ir.RelID `json:"to"`
}

// NodeReport is the wiring deduced for one node.
type NodeReport struct {
	Node      string     `json:"node"`
	Outputs   []Binding  `json:"outputs"`
	Redirects []Redirect `json:"redirects"`
	Sinks     []Binding  `json:"sinks"`
	Sources   []Binding  `json:"sources"`
}

// DeduceReport is the wiring of every node at one address.
type DeduceReport struct {
	Addr  string       `json:"addr"`
	Nodes []NodeReport `json:"nodes"`
}

// NewDeduceCommand creates the deduce command.
func NewDeduceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeduceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deduce",
		Short: "Show the wiring of the nodes at an address",
		Long: `Show what run would wire for every node assigned to an address,
without starting anything: relations streamed to each peer, redirects,
sink files and source files.

Example:
  ddnet deduce --config topology.yaml --addr 10.0.0.1:7000
  ddnet deduce --config topology.hcl --addr 10.0.0.1:7000 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeduce(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to topology file (required)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "local address (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("addr")

	return cmd
}

func runDeduce(opts *DeduceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	topo, err := loadTopology(formatter, opts.Config)
	if err != nil {
		return err
	}

	report := Deduce(topo, schema.Addr(opts.Addr))
	formatter.VerboseLog("%d node(s) assigned to %s", len(report.Nodes), opts.Addr)
	return formatter.Success(report, func(w io.Writer) {
		writeDeduceText(w, report)
	})
}

// Deduce computes the report for addr.
func Deduce(topo *config.Topology, addr schema.Addr) DeduceReport {
	idx := realize.NewOutputIndex(topo.System, topo.Assignment)

	report := DeduceReport{Addr: string(addr), Nodes: make([]NodeReport, 0)}
	for _, id := range topo.Assignment.NodesAt(addr) {
		cfg, ok := topo.System[id]
		if !ok {
			continue
		}

		nr := NodeReport{
			Node:      id.String(),
			Outputs:   make([]Binding, 0),
			Redirects: make([]Redirect, 0),
		}
		outputs := idx.Outputs(addr, cfg)
		for _, dst := range outputs.Addrs() {
			nr.Outputs = append(nr.Outputs, Binding{Target: string(dst), Relations: outputs[dst].Sorted()})
		}

		redirects := realize.DeduceRedirects(cfg)
		for from, to := range redirects {
			nr.Redirects = append(nr.Redirects, Redirect{From: from, To: to})
		}
		sort.Slice(nr.Redirects, func(i, j int) bool { return nr.Redirects[i].From < nr.Redirects[j].From })

		nr.Sinks = bindings(realize.DeduceSinks(cfg))
		nr.Sources = bindings(realize.DeduceSources(cfg))
		report.Nodes = append(report.Nodes, nr)
	}
	return report
}

func bindings(b realize.Bindings) []Binding {
	out := make([]Binding, 0, len(b))
	for _, path := range b.Paths() {
		out = append(out, Binding{Target: path, Relations: b[path].Sorted()})
	}
	return out
}

func writeDeduceText(w io.Writer, report DeduceReport) {
	fmt.Fprintf(w, "address %s: %d node(s)\n", report.Addr, len(report.Nodes))
	for _, n := range report.Nodes {
		fmt.Fprintf(w, "\nnode %s\n", n.Node)
		writeBindings(w, "outputs", n.Outputs)

		if len(n.Redirects) == 0 {
			fmt.Fprintln(w, "  redirects: none")
		} else {
			fmt.Fprintln(w, "  redirects:")
			for _, r := range n.Redirects {
				fmt.Fprintf(w, "    %d -> %d\n", r.From, r.To)
			}
		}

		writeBindings(w, "sinks", n.Sinks)
		writeBindings(w, "sources", n.Sources)
	}
}

func writeBindings(w io.Writer, title string, bs []Binding) {
	if len(bs) == 0 {
		fmt.Fprintf(w, "  %s: none\n", title)
		return
	}
	fmt.Fprintf(w, "  %s:\n", title)
	for _, b := range bs {
		fmt.Fprintf(w, "    %s: %v\n", b.Target, b.Relations)
	}
}
