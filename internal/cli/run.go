package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ddnet/internal/engine"
	"github.com/roach88/ddnet/internal/realize"
	"github.com/roach88/ddnet/internal/schema"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config          string
	Addr            string
	ConnectTimeout  time.Duration
	ConnectInterval time.Duration
	Strict          bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the nodes assigned to an address",
		Long: `Realize every logical node the topology assigns to --addr and keep
them running until interrupted.

Peers this host streams to are dialed with retry, so hosts may be started
in any order within the connect timeout. Sink files are truncated.

Example:
  ddnet run --config topology.yaml --addr 10.0.0.1:7000
  ddnet run -c topology.cue --addr 10.0.0.2:7000 --connect-timeout 1m --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodes(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to topology file (required)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "local address (required)")
	cmd.Flags().DurationVar(&opts.ConnectTimeout, "connect-timeout", realize.DefaultConnectTimeout, "how long to retry each peer")
	cmd.Flags().DurationVar(&opts.ConnectInterval, "connect-interval", realize.DefaultConnectInterval, "pause between connection attempts")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "reject redirect conflicts")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("addr")

	return cmd
}

func runNodes(opts *RunOptions, cmd *cobra.Command) error {
	logger := setupLogging(opts.RootOptions)
	formatter := newFormatter(opts.RootOptions, cmd)

	addr := schema.Addr(opts.Addr)
	if err := addr.Validate(); err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid address", err)
	}

	topo, err := loadTopology(formatter, opts.Config)
	if err != nil {
		return err
	}
	program, err := engine.NewProgram(topo.Rules...)
	if err != nil {
		_ = formatter.Error(string(engine.ErrCodeRuleCycle), err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid rules", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	realizeOpts := []realize.Option{
		realize.WithLogger(logger.With("component", "realize")),
		realize.WithConnectTimeout(opts.ConnectTimeout),
		realize.WithConnectInterval(opts.ConnectInterval),
	}
	if opts.Strict {
		realizeOpts = append(realizeOpts, realize.WithStrictRedirects())
	}

	slog.Info("instantiating", "addr", addr, "config", opts.Config)
	realizations, err := realize.Instantiate(ctx, program, topo.System, addr, topo.Assignment, realizeOpts...)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "instantiation failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Running %d node(s) at %s. Press Ctrl-C to stop.\n", len(realizations), addr)

	<-ctx.Done()
	slog.Info("shutting down", "nodes", len(realizations))

	if err := realize.CloseAll(realizations); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	slog.Info("stopped")
	return nil
}

// errorCode returns the kind of a realization error for CLI output.
func errorCode(err error) string {
	var re *realize.Error
	if errors.As(err, &re) {
		return string(re.Kind)
	}
	return ErrCodeGeneric
}
