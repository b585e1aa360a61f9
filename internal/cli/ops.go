package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pledgeworks/pledge/internal/engine"
	"github.com/pledgeworks/pledge/internal/payload"
	"github.com/pledgeworks/pledge/internal/protocol"
)

// operationResult is a committed operation as the CLI prints it.
type operationResult struct {
	engine.Result
}

func (r operationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ok: seq %d, commitment %d", r.Seq, r.CommitmentID)
	if r.Amount > 0 {
		fmt.Fprintf(&b, ", paid %d", r.Amount)
	}
	for _, ev := range r.Events {
		fmt.Fprintf(&b, "\n  %s", ev.Type)
		if ev.Actor != "" {
			fmt.Fprintf(&b, " actor=%s", ev.Actor)
		}
		if ev.To != "" {
			fmt.Fprintf(&b, " %s->%s", ev.From, ev.To)
		}
		if ev.Amount > 0 {
			fmt.Fprintf(&b, " amount=%d", ev.Amount)
		}
		if ev.Account != "" {
			fmt.Fprintf(&b, " account=%s", ev.Account)
		}
		if ev.UnlockAt != 0 {
			fmt.Fprintf(&b, " unlock_at=%d", ev.UnlockAt)
		}
	}
	return b.String()
}

// runOperation is the write path: lock, replay, execute, print. The
// operation is journaled whether it commits or is rejected.
func runOperation(cmd *cobra.Command, opts *RootOptions, build func(s *session) (protocol.Operation, error)) error {
	out := newFormatter(cmd, opts)
	caller := protocol.Identity(opts.Config.Identity)
	if caller == "" {
		return NewExitError(ExitCommandError, "no identity: pass --as or set identity in the config file")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts, true)
	if err != nil {
		return out.Fail("open journal", err)
	}
	defer s.Close()

	op, err := build(s)
	if err != nil {
		return out.Fail("prepare operation", err)
	}
	op.Caller = caller

	out.VerboseLog("submitting %s as %s", op.Op, caller)
	res, err := s.engine.Execute(ctx, op)
	if err != nil {
		return out.Fail(fmt.Sprintf("%s rejected", op.Op), err)
	}
	return out.Success(operationResult{res})
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid commitment id %q", arg))
	}
	return id, nil
}

// NewRegisterKindCommand creates the register-kind command.
func NewRegisterKindCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register-kind <kind>",
		Short: "Register a built-in commitment kind (registrar only)",
		Long: `Register one of the built-in commitment kinds so commitments of that
kind can be created. Only the registrar may register kinds, and each kind
registers once.

Kinds: ` + kindList(),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := protocol.ParseKind(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid kind", err)
			}
			return runOperation(cmd, opts, func(*session) (protocol.Operation, error) {
				return protocol.Operation{Op: protocol.OpRegisterKind, Kind: kind}, nil
			})
		},
	}
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Payload string
	Stake   uint64
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <kind>",
		Short: "Create and initialize a commitment",
		Long: `Create a commitment of a registered kind and initialize it with a payload.

The payload file may be JSON, YAML or CUE, chosen by extension; "-" reads
YAML or JSON from stdin. Time fields accept "now", "now+N" and "now-N",
where N is seconds or carries an s, m, h or d suffix.

Examples:
  pledge create DeadlineCommitment --payload essay.yaml --as alice
  pledge create TimelockingDeadlineTask --payload task.json --stake 100 --as alice
  echo '{name: walk}' | pledge create BaseCommitment --payload - --as alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := protocol.ParseKind(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid kind", err)
			}
			return runOperation(cmd, opts.RootOptions, func(s *session) (protocol.Operation, error) {
				raw, err := loadPayload(cmd.InOrStdin(), kind, opts.Payload, s.engine.Now())
				if err != nil {
					return protocol.Operation{}, err
				}
				return protocol.Operation{
					Op:      protocol.OpCreate,
					Kind:    kind,
					Payload: raw,
					Value:   protocol.Amount(opts.Stake),
				}, nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "", "payload file (json, yaml, cue) or - for stdin (required)")
	_ = cmd.MarkFlagRequired("payload")
	cmd.Flags().Uint64Var(&opts.Stake, "stake", 0, "stake sent with the commitment")

	return cmd
}

func loadPayload(stdin io.Reader, kind protocol.Kind, path string, now protocol.Timestamp) ([]byte, error) {
	schemas, err := payload.NewSchemas()
	if err != nil {
		return nil, err
	}
	if path != "-" {
		return schemas.LoadFile(kind, path, now)
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read payload from stdin: %w", err)
	}
	return schemas.Load(kind, payload.FormatYAML, data, now)
}

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(opts *RootOptions) *cobra.Command {
	var proof string

	cmd := &cobra.Command{
		Use:   "confirm <id>",
		Short: "Submit a confirmation for a commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOperation(cmd, opts, func(*session) (protocol.Operation, error) {
				return protocol.Operation{Op: protocol.OpConfirm, CommitmentID: id, ProofURI: proof}, nil
			})
		},
	}

	cmd.Flags().StringVar(&proof, "proof", "", "URI of the proof backing this confirmation")
	return cmd
}

// idCommand builds a command whose only input is the commitment id.
func idCommand(opts *RootOptions, op protocol.OpName, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(op) + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOperation(cmd, opts, func(*session) (protocol.Operation, error) {
				return protocol.Operation{Op: op, CommitmentID: id}, nil
			})
		},
	}
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(opts *RootOptions) *cobra.Command {
	return idCommand(opts, protocol.OpCancel, "Cancel a commitment and refund its stake")
}

// NewPauseCommand creates the pause command.
func NewPauseCommand(opts *RootOptions) *cobra.Command {
	return idCommand(opts, protocol.OpPause, "Pause a recurring commitment")
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(opts *RootOptions) *cobra.Command {
	return idCommand(opts, protocol.OpResume, "Resume a paused commitment")
}

// NewExitCommand creates the exit command.
func NewExitCommand(opts *RootOptions) *cobra.Command {
	return idCommand(opts, protocol.OpExit, "Leave a partner bet and settle the pot")
}

// NewStartCommand creates the start command.
func NewStartCommand(opts *RootOptions) *cobra.Command {
	var stake uint64

	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Join a partner bet as the other player and start it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOperation(cmd, opts, func(*session) (protocol.Operation, error) {
				return protocol.Operation{Op: protocol.OpStart, CommitmentID: id, Value: protocol.Amount(stake)}, nil
			})
		},
	}

	cmd.Flags().Uint64Var(&stake, "stake", 0, "stake matched into the bet (required)")
	_ = cmd.MarkFlagRequired("stake")
	return cmd
}

// NewJoinCommand creates the join command.
func NewJoinCommand(opts *RootOptions) *cobra.Command {
	var (
		stake        uint64
		lockDuration int64
	)

	cmd := &cobra.Command{
		Use:   "join <id>",
		Short: "Stake against your own deadline commitment through the timelock module",
		Long: `Escrow stake in the standalone timelock module against a deadline
commitment you own. If the deadline is missed the stake is locked until
deadline + lock duration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOperation(cmd, opts, func(*session) (protocol.Operation, error) {
				return protocol.Operation{
					Op:           protocol.OpJoin,
					CommitmentID: id,
					Module:       protocol.ModuleTimelock,
					Value:        protocol.Amount(stake),
					LockDuration: lockDuration,
				}, nil
			})
		},
	}

	cmd.Flags().Uint64Var(&stake, "stake", 0, "stake to escrow (required)")
	cmd.Flags().Int64Var(&lockDuration, "lock-duration", 0, "seconds the stake stays locked after a missed deadline (required)")
	_ = cmd.MarkFlagRequired("stake")
	_ = cmd.MarkFlagRequired("lock-duration")
	return cmd
}

// NewPenalizeCommand creates the penalize command.
func NewPenalizeCommand(opts *RootOptions) *cobra.Command {
	var (
		participant string
		module      string
	)

	cmd := &cobra.Command{
		Use:   "penalize <id>",
		Short: "Lock the stake of a participant who missed a deadline",
		Long: `Lock a participant's stake for a miss not yet penalized. Anyone may
penalize. Without --module the commitment's own timelock is used; with
--module timelock the standalone timelock module is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOperation(cmd, opts, func(*session) (protocol.Operation, error) {
				return protocol.Operation{
					Op:           protocol.OpPenalize,
					CommitmentID: id,
					Module:       module,
					Participant:  protocol.Identity(participant),
				}, nil
			})
		},
	}

	cmd.Flags().StringVar(&participant, "participant", "", "participant to penalize (default: the owner)")
	cmd.Flags().StringVar(&module, "module", "", "penalty module: empty for the commitment's own, or timelock")
	return cmd
}

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(opts *RootOptions) *cobra.Command {
	var module string

	cmd := &cobra.Command{
		Use:   "withdraw <id>",
		Short: "Withdraw timelocked stake once the rules allow it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOperation(cmd, opts, func(*session) (protocol.Operation, error) {
				return protocol.Operation{Op: protocol.OpWithdraw, CommitmentID: id, Module: module}, nil
			})
		},
	}

	cmd.Flags().StringVar(&module, "module", "", "penalty module: empty for the commitment's own, or timelock")
	return cmd
}

func kindList() string {
	names := make([]string, len(protocol.Kinds))
	for i, k := range protocol.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
