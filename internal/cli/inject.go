package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ddnet/internal/files"
	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
	"github.com/roach88/ddnet/internal/schema"
	"github.com/roach88/ddnet/internal/tcpchan"
)

// InjectOptions holds flags for the inject command.
type InjectOptions struct {
	*RootOptions
	To             string
	ConnectTimeout time.Duration
}

// InjectResult summarizes one injection.
type InjectResult struct {
	To           string `json:"to"`
	File         string `json:"file"`
	Transactions int64  `json:"transactions"`
}

// NewInjectCommand creates the inject command.
func NewInjectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InjectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inject <file>",
		Short: "Send a transaction file to a running node",
		Long: `Read transactions from a YAML transaction file and stream them to the
channel listening at --to.

Relation ids in the file must be the ids a node at that address consumes
as inputs; other relations are dropped by the receiver.

Example:
  ddnet inject --to 10.0.0.2:7000 txns.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInject(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "address of the receiving node (required)")
	cmd.Flags().DurationVar(&opts.ConnectTimeout, "connect-timeout", 5*time.Second, "how long to retry the connection")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runInject(opts *InjectOptions, cmd *cobra.Command, path string) error {
	logger := setupLogging(opts.RootOptions)
	formatter := newFormatter(opts.RootOptions, cmd)

	to := schema.Addr(opts.To)
	if err := to.Validate(); err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid address", err)
	}

	src, err := files.OpenSource(path, files.WithLogger(logger.With("component", "files", "path", path)))
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open transaction file", err)
	}
	defer src.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sender, err := tcpchan.DialWithRetry(ctx, string(to), opts.ConnectTimeout, tcpchan.DefaultInterval)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "connect failed", err)
	}

	counter := &countingObserver{next: sender}
	if err := src.Subscribe(counter); err != nil {
		_ = sender.Close()
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "subscribe failed", err)
	}

	select {
	case <-src.Done():
	case <-ctx.Done():
		_ = src.Close()
	}

	err = errors.Join(src.Err(), ctx.Err(), sender.Close())
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "injection failed", err)
	}

	result := InjectResult{To: string(to), File: path, Transactions: counter.sent.Load()}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Sent %d transaction(s) from %s to %s\n", result.Transactions, result.File, result.To)
	})
}

// countingObserver forwards to next and counts delivered transactions.
type countingObserver struct {
	next observe.Observer
	sent atomic.Int64
}

func (c *countingObserver) OnTxn(txn ir.Txn) error {
	if err := c.next.OnTxn(txn); err != nil {
		return err
	}
	c.sent.Add(1)
	return nil
}

func (c *countingObserver) OnCompleted() error {
	return c.next.OnCompleted()
}
