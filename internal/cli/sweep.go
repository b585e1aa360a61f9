package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pledgeworks/pledge/internal/config"
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/sweeper"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Once bool
}

// SweepResult is the text/JSON form of a single sweep.
type SweepResult struct {
	sweeper.Report
}

func (r SweepResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sweep: %d penalized, %d refused", len(r.Penalized), len(r.Failed))
	for _, p := range r.Penalized {
		fmt.Fprintf(&b, "\n  ✓ commitment %d %s", p.CommitmentID, p.Participant)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "\n  ✗ commitment %d %s: %s", f.CommitmentID, f.Participant, f.Code)
	}
	return b.String()
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Apply every penalty that is currently due",
		Long: `Find staked commitments whose deadline has been missed and penalize them.

Without --once the sweeper stays in the foreground and sweeps on the
configured cron schedule until interrupted. Each sweep takes the journal
lock and replays the journal, so it sees writes from other processes.

Examples:
  pledge sweep --once
  pledge sweep --sweep-schedule "*/1 * * * *"
  pledge sweep --sweeper-identity enforcer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "sweep once and exit")
	cmd.Flags().String("sweep-schedule", config.DefaultSweeperSchedule, "cron schedule for the sweeper")
	cmd.Flags().String("sweeper-identity", config.DefaultSweeperIdentity, "identity recorded on penalize operations")

	return cmd
}

func runSweep(cmd *cobra.Command, opts *SweepOptions) error {
	out := newFormatter(cmd, opts.RootOptions)
	cfg := opts.Config

	open := func(ctx context.Context) (sweeper.Executor, func(), error) {
		s, err := openSession(ctx, opts.RootOptions, true)
		if err != nil {
			return nil, nil, err
		}
		return s.engine, s.Close, nil
	}

	sw, err := sweeper.New(open, sweeper.Config{
		Schedule: cfg.Sweeper.Schedule,
		Identity: protocol.Identity(cfg.Sweeper.Identity),
	}, sweeper.WithLogger(opts.Logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sweeper configuration", err)
	}

	if !opts.Once {
		return sw.Run(cmd.Context())
	}

	report, err := sw.Sweep(cmd.Context())
	if err != nil {
		return out.Fail("sweep", err)
	}
	return out.Success(SweepResult{Report: report})
}
