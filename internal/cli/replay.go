package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pledgeworks/pledge/internal/engine"
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/store"
)

// ReplayResult holds the outcome of replaying a journal.
type ReplayResult struct {
	Registrar     protocol.Identity `json:"registrar"`
	Operations    int               `json:"operations"`
	Rejected      int               `json:"rejected"`
	Events        int               `json:"events"`
	LastSeq       int64             `json:"last_seq"`
	Digest        string            `json:"digest"`
	Balanced      bool              `json:"balanced"`
	Deterministic bool              `json:"deterministic"`
}

func (r ReplayResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Replay Summary: %d operation(s), %d rejected, %d event(s)\n", r.Operations, r.Rejected, r.Events)
	fmt.Fprintf(&b, "  registrar: %s\n", r.Registrar)
	fmt.Fprintf(&b, "  last seq:  %d\n", r.LastSeq)
	fmt.Fprintf(&b, "  digest:    %s\n", r.Digest)
	fmt.Fprintf(&b, "  balanced:  %v\n", r.Balanced)
	if r.Deterministic {
		b.WriteString("✓ Journal verified deterministic")
	} else {
		b.WriteString("✗ Determinism verification failed")
	}
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Replay the journal and verify determinism",
		Long: `Replay every journaled operation into a fresh engine, twice.

Each record must reproduce its seq, outcome and events exactly, and both
replays must reach the same state digest. Stake conservation is checked
on the final ledger.

Exit codes:
  0 - Journal replays deterministically
  1 - Replay mismatch, differing digests or an unbalanced ledger
  2 - Command error (journal not found, etc.)

Examples:
  pledge replay --db ./pledge.db
  pledge replay --db ./pledge.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}
}

func runReplay(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	out := newFormatter(cmd, opts)
	path := opts.Config.Store.Path

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return out.Fail("replay", fmt.Errorf("journal not found: %s", path))
	}

	st, err := store.Open(path)
	if err != nil {
		return out.Fail("open journal", err)
	}
	defer st.Close()

	registrar := protocol.Identity(opts.Config.Registrar)
	if recorded, ok, err := st.Meta(ctx, store.MetaRegistrar); err != nil {
		return out.Fail("read journal meta", err)
	} else if ok {
		registrar = protocol.Identity(recorded)
	}

	records, err := st.ReadOperations(ctx)
	if err != nil {
		return out.Fail("read journal", err)
	}

	first, err := replayDigest(ctx, opts, registrar, records)
	if err != nil {
		return out.Fail("replay", err)
	}
	second, err := replayDigest(ctx, opts, registrar, records)
	if err != nil {
		return out.Fail("second replay", err)
	}

	result := ReplayResult{
		Registrar:     registrar,
		Operations:    len(records),
		Events:        len(first.engine.Events()),
		LastSeq:       first.engine.LastSeq(),
		Digest:        first.digest,
		Balanced:      first.engine.Balanced(),
		Deterministic: first.digest == second.digest,
	}
	for _, rec := range records {
		if !rec.Succeeded() {
			result.Rejected++
		}
	}

	if !result.Deterministic || !result.Balanced {
		code, message := "E_DETERMINISM", "determinism verification failed"
		if !result.Balanced {
			code, message = "E_"+string(engine.ErrCodeLedgerViolation), "ledger does not balance"
		}
		if opts.Format == "text" {
			fmt.Fprintln(out.Writer, result)
		}
		if err := out.Error(code, message, result); err != nil {
			return err
		}
		exitErr := NewExitError(ExitFailure, message)
		exitErr.reported = true
		return exitErr
	}
	return out.Success(result)
}

type replayed struct {
	engine *engine.Engine
	digest string
}

func replayDigest(ctx context.Context, opts *RootOptions, registrar protocol.Identity, records []protocol.OperationRecord) (replayed, error) {
	eng, err := engine.Replay(ctx, registrar, records, engine.WithLogger(opts.Logger))
	if err != nil {
		return replayed{}, err
	}
	digest, err := eng.Digest()
	if err != nil {
		return replayed{}, err
	}
	return replayed{engine: eng, digest: digest}, nil
}
