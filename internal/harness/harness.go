package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pledgeworks/pledge/internal/engine"
	"github.com/pledgeworks/pledge/internal/payload"
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/store"
	"github.com/pledgeworks/pledge/internal/testutil"
)

// Runner executes scenarios. It holds the compiled payload schemas so a
// directory of scenarios compiles them once.
//
// Thread-safety: a Runner runs one scenario at a time.
type Runner struct {
	schemas *payload.Schemas
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger passed to the engines the runner builds.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner compiles the payload schemas and returns a runner.
func NewRunner(opts ...Option) (*Runner, error) {
	schemas, err := payload.NewSchemas()
	if err != nil {
		return nil, err
	}
	r := &Runner{
		schemas: schemas,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes one scenario with a fresh runner.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	r, err := NewRunner()
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, scenario)
}

// Run executes a scenario and returns the result.
//
// Each run gets an in-memory journal and a manual clock starting at the
// scenario's start_at. Operation ids are sequential, so two runs of the
// same scenario produce identical histories.
//
// Execution flow:
//  1. Execute steps, checking each op's outcome against its expect clause
//  2. Replay the journal into a second engine and compare digests
//  3. Check stake conservation
//  4. Evaluate assertions against the final state
//
// A returned error means the scenario could not run at all (store
// failure, engine halt). Failed checks are reported in the Result.
func (r *Runner) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewManualTime(scenario.startAt())
	eng := engine.New(scenario.registrar(),
		engine.WithTimeSource(clock),
		engine.WithJournal(st),
		engine.WithLogger(r.logger),
		engine.WithIDGenerator(engine.NewSequentialGenerator("op")),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		switch {
		case step.Advance != 0:
			clock.Advance(step.Advance)
			continue
		case step.Set != 0:
			clock.Set(step.Set)
			continue
		}

		if err := r.execute(ctx, eng, clock.Now(), i, step, result); err != nil {
			return nil, err
		}
	}

	r.verifyJournal(ctx, st, scenario.registrar(), eng, result)
	if !eng.Balanced() {
		result.AddError("stake is not conserved: deposits do not equal escrow plus payouts")
	}

	for _, msg := range EvaluateAssertions(eng, result, scenario.Assertions) {
		result.AddError(msg)
	}

	digest, err := eng.Digest()
	if err != nil {
		return nil, fmt.Errorf("failed to digest history: %w", err)
	}
	result.Digest = digest
	return result, nil
}

// execute runs one op step and records its events and any failed
// expectation.
func (r *Runner) execute(ctx context.Context, eng *engine.Engine, now protocol.Timestamp, i int, step Step, result *Result) error {
	op := protocol.Operation{
		Op:           step.Op,
		Caller:       step.Caller,
		CommitmentID: step.CommitmentID,
		Kind:         step.Kind,
		Value:        step.Value,
		Module:       step.Module,
		Participant:  step.Participant,
		ProofURI:     step.ProofURI,
		LockDuration: step.LockDuration,
	}

	var (
		res    engine.Result
		opErr  error
		posted bool
	)
	if step.Payload != nil {
		op.Payload, opErr = r.schemas.Prepare(step.Kind, step.Payload, now)
	}
	if opErr == nil {
		posted = true
		res, opErr = eng.Execute(ctx, op)
		if engine.IsRuntimeError(opErr) {
			return fmt.Errorf("step %d (%s): %w", i, step.Op, opErr)
		}
	}

	label := fmt.Sprintf("step %d (%s)", i, step.Op)
	want := Expect{}
	if step.Expect != nil {
		want = *step.Expect
	}
	got := protocol.CodeOf(opErr)

	switch {
	case got != want.Error && want.Error == "":
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", label, opErr))
		return nil
	case got != want.Error && got == "":
		result.AddError(fmt.Sprintf("%s: expected %s, operation succeeded", label, want.Error))
	case got != want.Error:
		result.AddError(fmt.Sprintf("%s: expected %s, got %s", label, want.Error, got))
		return nil
	}
	if opErr != nil || !posted {
		return nil
	}

	result.AddEvents(res.Events)
	if want.Amount != nil && *want.Amount != res.Amount {
		result.AddError(fmt.Sprintf("%s: expected amount %d, got %d", label, *want.Amount, res.Amount))
	}
	if want.ID != nil && *want.ID != res.CommitmentID {
		result.AddError(fmt.Sprintf("%s: expected commitment id %d, got %d", label, *want.ID, res.CommitmentID))
	}
	return nil
}

// verifyJournal replays what the run journaled and checks it rebuilds the
// same history.
func (r *Runner) verifyJournal(ctx context.Context, st *store.Store, registrar protocol.Identity, eng *engine.Engine, result *Result) {
	records, err := st.ReadOperations(ctx)
	if err != nil {
		result.AddError(fmt.Sprintf("journal read failed: %v", err))
		return
	}
	if int64(len(records)) != eng.LastSeq() {
		result.AddError(fmt.Sprintf("journal holds %d operations, engine ran %d", len(records), eng.LastSeq()))
	}

	replayed, err := engine.Replay(ctx, registrar, records, engine.WithLogger(r.logger))
	if err != nil {
		result.AddError(fmt.Sprintf("journal replay failed: %v", err))
		return
	}

	want, err := eng.Digest()
	if err != nil {
		result.AddError(fmt.Sprintf("digest failed: %v", err))
		return
	}
	got, err := replayed.Digest()
	if err != nil {
		result.AddError(fmt.Sprintf("digest failed: %v", err))
		return
	}
	if got != want {
		result.AddError(fmt.Sprintf("replayed history digest %s differs from %s", got, want))
	}
}
