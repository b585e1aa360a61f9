package sweeper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pledgeworks/pledge/internal/engine"
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/testutil"
)

const hour int64 = 3600

func newEngine(t *testing.T, clock *testutil.ManualTime) *engine.Engine {
	t.Helper()
	e := engine.New("registrar",
		engine.WithTimeSource(clock),
		engine.WithLogger(testutil.DiscardLogger()),
	)
	ctx := context.Background()
	for _, kind := range protocol.Kinds {
		_, err := e.Execute(ctx, protocol.Operation{Op: protocol.OpRegisterKind, Caller: "registrar", Kind: kind})
		require.NoError(t, err)
	}
	return e
}

func TestSweep_PenalizesPendingOnce(t *testing.T) {
	clock := testutil.NewManualTime(testutil.Monday)
	e := newEngine(t, clock)
	ctx := context.Background()

	deadline := testutil.Monday + 10*hour
	_, err := e.Execute(ctx, protocol.Operation{
		Op:      protocol.OpCreate,
		Caller:  "alice",
		Kind:    protocol.KindTimelockingDeadlineTask,
		Value:   100,
		Payload: []byte(fmt.Sprintf(`{"deadline":%d,"submission_window":%d,"timelock_duration":%d}`, deadline, hour, 2*hour)),
	})
	require.NoError(t, err)

	s, err := New(Fixed(e), Config{Schedule: "@every 1m", Identity: "sweeper"}, WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)

	report, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Penalized, "nothing is missed before the deadline")

	clock.Set(deadline + 1)
	report, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.PendingPenalty{{CommitmentID: 0, Participant: "alice"}}, report.Penalized)
	assert.Empty(t, report.Failed)

	events := e.Events()
	last := events[len(events)-1]
	assert.Equal(t, protocol.EventPenalized, last.Type)

	report, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Penalized, "a miss is penalized once")
}

type refusingExecutor struct {
	pending []engine.PendingPenalty
	err     error
}

func (r refusingExecutor) PendingPenalties() []engine.PendingPenalty { return r.pending }

func (r refusingExecutor) Execute(context.Context, protocol.Operation) (engine.Result, error) {
	return engine.Result{}, r.err
}

func TestSweep_CollectsRefusals(t *testing.T) {
	exec := refusingExecutor{
		pending: []engine.PendingPenalty{{CommitmentID: 3, Participant: "bob"}},
		err:     protocol.ErrNothingToPenalize,
	}
	s, err := New(Fixed(exec), Config{Schedule: "*/5 * * * *", Identity: "sweeper"})
	require.NoError(t, err)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Penalized)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, protocol.ErrorCode("NOTHING_TO_PENALIZE"), report.Failed[0].Code)
}

func TestSweep_AbortsOnRuntimeError(t *testing.T) {
	exec := refusingExecutor{
		pending: []engine.PendingPenalty{{CommitmentID: 1}, {CommitmentID: 2}},
		err:     &engine.RuntimeError{Code: engine.ErrCodeHalted, Message: "halted"},
	}
	s, err := New(Fixed(exec), Config{Schedule: "*/5 * * * *", Identity: "sweeper"})
	require.NoError(t, err)

	_, err = s.Sweep(context.Background())
	assert.True(t, engine.IsHalted(err))
}

func TestSweep_OpenFailure(t *testing.T) {
	open := func(context.Context) (Executor, func(), error) {
		return nil, nil, fmt.Errorf("journal locked")
	}
	s, err := New(open, Config{Schedule: "*/5 * * * *", Identity: "sweeper"})
	require.NoError(t, err)
	_, err = s.Sweep(context.Background())
	assert.ErrorContains(t, err, "journal locked")
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Fixed(refusingExecutor{}), Config{Schedule: "every tuesday", Identity: "sweeper"})
	assert.Error(t, err)

	_, err = New(Fixed(refusingExecutor{}), Config{Schedule: "0 * * * *"})
	assert.Error(t, err)

	s, err := New(Fixed(refusingExecutor{}), Config{Schedule: "0 * * * *", Identity: "sweeper"})
	require.NoError(t, err)
	from := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), s.Next(from))
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := New(Fixed(refusingExecutor{}), Config{Schedule: "@every 1h", Identity: "sweeper"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
