package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ddnet/internal/config"
	"github.com/roach88/ddnet/internal/engine"
	"github.com/roach88/ddnet/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
	Strict bool
}

// ConflictReport is a redirect conflict within one node.
type ConflictReport struct {
	Node    string     `json:"node"`
	Source  ir.RelID   `json:"source"`
	Targets []ir.RelID `json:"targets"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool             `json:"valid"`
	Nodes      int              `json:"nodes"`
	Addresses  int              `json:"addresses"`
	Rules      int              `json:"rules"`
	Unassigned []string         `json:"unassigned"`
	Conflicts  []ConflictReport `json:"conflicts"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a topology file",
		Long: `Load a topology file and report problems: syntax and schema errors,
cyclic rules, nodes assigned to no address, and redirect conflicts (one
relation consumed by several relations of the same node).

Conflicts are warnings unless --strict is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to topology file (required)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat redirect conflicts as errors")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	topo, err := loadTopology(formatter, opts.Config)
	if err != nil {
		return err
	}

	if _, err := engine.NewProgram(topo.Rules...); err != nil {
		_ = formatter.Error(string(engine.ErrCodeRuleCycle), err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid rules", err)
	}

	result := Validate(topo)
	result.Valid = !opts.Strict || len(result.Conflicts) == 0

	if err := formatter.Success(result, func(w io.Writer) {
		writeValidateText(w, result)
	}); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d redirect conflict(s)", len(result.Conflicts)))
	}
	return nil
}

// Validate summarizes topo and collects its warnings.
func Validate(topo *config.Topology) ValidationResult {
	result := ValidationResult{
		Valid:      true,
		Nodes:      len(topo.System),
		Addresses:  len(topo.Assignment.Addrs()),
		Rules:      len(topo.Rules),
		Unassigned: make([]string, 0),
		Conflicts:  make([]ConflictReport, 0),
	}
	for _, id := range topo.Unassigned() {
		result.Unassigned = append(result.Unassigned, id.String())
	}
	for _, id := range topo.System.NodeIDs() {
		for _, c := range topo.System[id].Conflicts() {
			result.Conflicts = append(result.Conflicts, ConflictReport{Node: id.String(), Source: c.Source, Targets: c.Targets})
		}
	}
	return result
}

func writeValidateText(w io.Writer, r ValidationResult) {
	if r.Valid {
		fmt.Fprintf(w, "✓ Topology valid: %d node(s), %d address(es), %d rule(s)\n", r.Nodes, r.Addresses, r.Rules)
	} else {
		fmt.Fprintf(w, "✗ Topology invalid: %d redirect conflict(s)\n", len(r.Conflicts))
	}
	for _, id := range r.Unassigned {
		fmt.Fprintf(w, "warning: node %s is not assigned to an address\n", id)
	}
	for _, c := range r.Conflicts {
		fmt.Fprintf(w, "warning: node %s: relation %d is input of relations %v\n", c.Node, c.Source, c.Targets)
	}
}
