package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/pledgeworks/pledge/internal/commitment"
	"github.com/pledgeworks/pledge/internal/ledger"
	"github.com/pledgeworks/pledge/internal/penalty"
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/registry"
)

// Journal receives every executed operation in seq order.
// Implemented by store.Store.
type Journal interface {
	Append(ctx context.Context, rec protocol.OperationRecord) error
}

// Engine owns the registry, the standalone timelock and the vault, and
// serializes every operation against them.
type Engine struct {
	mu sync.Mutex

	registry *registry.Registry
	timelock *penalty.Timelock
	vault    *ledger.Vault
	events   []protocol.Event

	clock   *Clock
	time    TimeSource
	journal Journal
	ids     IDGenerator
	logger  *slog.Logger

	lastAt protocol.Timestamp
	halted error
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithTimeSource replaces the wall clock.
func WithTimeSource(ts TimeSource) EngineOption {
	return func(e *Engine) {
		e.time = ts
	}
}

// WithJournal makes every operation durable before Execute returns.
func WithJournal(j Journal) EngineOption {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets how operations without an id get one.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an engine whose registry is administered by registrar.
func New(registrar protocol.Identity, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry.New(registrar),
		timelock: penalty.NewTimelock(protocol.ModuleTimelock),
		vault:    ledger.NewVault(),
		clock:    NewClock(),
		time:     SystemTime{},
		ids:      UUIDv7Generator{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AttachJournal sets the journal after construction, typically once a
// replay has rebuilt state from that same journal.
func (e *Engine) AttachJournal(j Journal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.journal = j
}

// Result is what a committed operation reports back.
type Result struct {
	OperationID  string             `json:"operation_id"`
	Seq          int64              `json:"seq"`
	At           protocol.Timestamp `json:"at"`
	CommitmentID uint64             `json:"commitment_id"`
	Amount       protocol.Amount    `json:"amount,omitempty"`
	Events       []protocol.Event   `json:"events"`
}

// Execute runs one operation to completion. A protocol rejection is
// returned as the *protocol.Error and leaves state untouched; a
// *RuntimeError means the engine halted.
func (e *Engine) Execute(ctx context.Context, op protocol.Operation) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted != nil {
		return Result{}, newHaltedError(e.halted)
	}
	if op.ID == "" {
		op.ID = e.ids.Generate()
	}

	at := op.At
	if at == 0 {
		at = e.time.Now()
	}
	if at < e.lastAt {
		at = e.lastAt
	}
	e.lastAt = at
	op.At = at

	seq := e.clock.Next()
	call := protocol.NewCall(op.Caller, at, op.Value)
	res, opErr := e.dispatch(call, op)
	res.OperationID = op.ID
	res.Seq = seq
	res.At = at

	rec := protocol.OperationRecord{Seq: seq, Operation: op, At: at}
	if opErr != nil {
		rec.Outcome = protocol.CodeOf(opErr)
		if rec.Outcome == "" {
			return Result{}, e.halt(&RuntimeError{
				Code:    ErrCodeInternal,
				Message: "operation failed outside the protocol error set",
				Seq:     seq,
				Err:     opErr,
			})
		}
	} else {
		for i := range call.Effects.Events {
			ev := &call.Effects.Events[i]
			ev.Seq = seq
			ev.Index = i
			ev.At = at
		}
		if err := e.vault.Apply(call.Effects.Movements); err != nil {
			return Result{}, e.halt(&RuntimeError{
				Code:    ErrCodeLedgerViolation,
				Message: "vault rejected the operation's movements",
				Seq:     seq,
				Err:     err,
			})
		}
		rec.Events = call.Effects.Events
		e.events = append(e.events, call.Effects.Events...)
		e.registry.Index(call.Effects.Events)
		res.Events = call.Effects.Events
	}

	if e.journal != nil {
		if err := e.journal.Append(ctx, rec); err != nil {
			return Result{}, e.halt(&RuntimeError{
				Code:    ErrCodeJournalFailed,
				Message: "could not journal operation",
				Seq:     seq,
				Err:     err,
			})
		}
	}

	if opErr != nil {
		e.logger.Info("operation rejected",
			"seq", seq,
			"op", op.Op,
			"caller", op.Caller,
			"commitment_id", op.CommitmentID,
			"code", rec.Outcome,
		)
		return res, opErr
	}
	e.logger.Info("operation committed",
		"seq", seq,
		"op", op.Op,
		"caller", op.Caller,
		"commitment_id", res.CommitmentID,
		"events", len(res.Events),
	)
	return res, nil
}

func (e *Engine) halt(err *RuntimeError) error {
	e.halted = err
	e.logger.Error("engine halted",
		"code", err.Code,
		"seq", err.Seq,
		"error", err,
	)
	return err
}

// Halted returns the failure that halted the engine, or nil.
func (e *Engine) Halted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// LastSeq is the seq of the most recent operation.
func (e *Engine) LastSeq() int64 {
	return e.clock.Current()
}

func (e *Engine) dispatch(call *protocol.Call, op protocol.Operation) (Result, error) {
	res := Result{CommitmentID: op.CommitmentID}

	switch op.Op {
	case protocol.OpRegisterKind:
		t, err := builtinTemplate(op.Kind)
		if err != nil {
			return res, err
		}
		return res, e.registry.RegisterKind(call, t)

	case protocol.OpCreate:
		id, err := e.registry.Create(call, op.Kind, op.Payload)
		res.CommitmentID = id
		return res, err
	}

	c, err := e.registry.Get(op.CommitmentID)
	if err != nil {
		return res, err
	}

	switch op.Op {
	case protocol.OpInit:
		return res, c.Init(call, op.Payload)
	case protocol.OpConfirm:
		return res, c.SubmitConfirmation(call, op.ProofURI)
	case protocol.OpCancel:
		return res, c.Cancel(call)
	case protocol.OpPause:
		return res, c.Pause(call)
	case protocol.OpResume:
		return res, c.Resume(call)
	case protocol.OpStart:
		return res, c.Start(call)
	case protocol.OpExit:
		err := c.Exit(call)
		res.Amount = call.Effects.Released(call.Caller)
		return res, err

	case protocol.OpJoin:
		if op.Module != "" && op.Module != protocol.ModuleTimelock {
			return res, unknownModule(op.Module)
		}
		return res, e.timelock.Join(call, c, op.LockDuration)

	case protocol.OpPenalize:
		switch op.Module {
		case "":
			return res, c.Penalize(call, op.Participant)
		case protocol.ModuleTimelock:
			who := op.Participant
			if who == "" {
				who = c.Owner()
			}
			return res, e.timelock.Penalize(call, c, who)
		}
		return res, unknownModule(op.Module)

	case protocol.OpWithdraw:
		var amount protocol.Amount
		switch op.Module {
		case "":
			amount, err = c.Withdraw(call)
		case protocol.ModuleTimelock:
			amount, err = e.timelock.Withdraw(call, c)
		default:
			err = unknownModule(op.Module)
		}
		res.Amount = amount
		return res, err
	}

	return res, protocol.Errorf(protocol.ErrUnsupportedOperation, "unknown operation %q", op.Op)
}

func unknownModule(module string) error {
	return protocol.Errorf(protocol.ErrUnsupportedOperation, "unknown penalty module %q", module)
}

func builtinTemplate(kind protocol.Kind) (commitment.Template, error) {
	t, ok := commitment.Builtin(kind)
	if !ok {
		return t, protocol.Errorf(protocol.ErrInvalidPayload, "no built-in template for kind %q", kind)
	}
	return t, nil
}
