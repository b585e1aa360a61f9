package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/testutil"
)

const (
	hour int64 = 3600
	day  int64 = 86400
)

// memJournal records appended operations in memory.
type memJournal struct {
	records []protocol.OperationRecord
	fail    error
}

func (j *memJournal) Append(_ context.Context, rec protocol.OperationRecord) error {
	if j.fail != nil {
		return j.fail
	}
	j.records = append(j.records, rec)
	return nil
}

type harness struct {
	t       *testing.T
	engine  *Engine
	time    *testutil.ManualTime
	journal *memJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		time:    testutil.NewManualTime(testutil.Monday),
		journal: &memJournal{},
	}
	h.engine = New("registrar",
		WithTimeSource(h.time),
		WithJournal(h.journal),
		WithLogger(testutil.DiscardLogger()),
		WithIDGenerator(NewSequentialGenerator("op")),
	)
	for _, kind := range protocol.Kinds {
		h.ok(protocol.Operation{Op: protocol.OpRegisterKind, Caller: "registrar", Kind: kind})
	}
	return h
}

func (h *harness) exec(op protocol.Operation) (Result, error) {
	h.t.Helper()
	return h.engine.Execute(context.Background(), op)
}

func (h *harness) ok(op protocol.Operation) Result {
	h.t.Helper()
	res, err := h.exec(op)
	require.NoError(h.t, err, "op %s", op.Op)
	return res
}

func (h *harness) create(caller protocol.Identity, kind protocol.Kind, value protocol.Amount, payload string) uint64 {
	h.t.Helper()
	res := h.ok(protocol.Operation{Op: protocol.OpCreate, Caller: caller, Kind: kind, Value: value, Payload: []byte(payload)})
	return res.CommitmentID
}

func TestExecute_RegisterTwiceRejected(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, protocol.Kinds, h.engine.Kinds())

	_, err := h.exec(protocol.Operation{Op: protocol.OpRegisterKind, Caller: "registrar", Kind: protocol.KindBase})
	assert.ErrorIs(t, err, protocol.ErrAlreadyRegistered)

	_, err = h.exec(protocol.Operation{Op: protocol.OpRegisterKind, Caller: "registrar", Kind: "Custom"})
	assert.ErrorIs(t, err, protocol.ErrInvalidPayload)
}

func TestExecute_CreateStampsEvents(t *testing.T) {
	h := newHarness(t)
	before := h.engine.LastSeq()

	res := h.ok(protocol.Operation{Op: protocol.OpCreate, Caller: "alice", Kind: protocol.KindBase, Payload: []byte(`{"name":"walk"}`)})
	assert.Equal(t, before+1, res.Seq)
	assert.Equal(t, uint64(0), res.CommitmentID)
	assert.Equal(t, testutil.Monday, res.At)
	assert.Equal(t, "op-6", res.OperationID)

	require.Len(t, res.Events, 2)
	for i, ev := range res.Events {
		assert.Equal(t, res.Seq, ev.Seq)
		assert.Equal(t, i, ev.Index)
		assert.Equal(t, testutil.Monday, ev.At)
	}
	assert.Equal(t, protocol.EventCommitmentCreation, res.Events[0].Type)

	status, err := h.engine.Status(0)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusActive, status)
	owner, err := h.engine.Owner(0)
	require.NoError(t, err)
	assert.Equal(t, protocol.Identity("alice"), owner)
	mine := h.engine.CommitmentsOf("alice")
	require.Len(t, mine, 1)
	assert.Equal(t, uint64(0), mine[0].ID)
	assert.Equal(t, protocol.KindBase, mine[0].Kind)
	assert.Equal(t, res.Events[0].Handle, mine[0].Handle)
	assert.Equal(t, res.Seq, mine[0].Seq)
	assert.Equal(t, uint64(1), h.engine.NextID())
}

func TestExecute_RejectionHasNoEffect(t *testing.T) {
	h := newHarness(t)
	events := len(h.engine.Events())
	journaled := len(h.journal.records)

	_, err := h.exec(protocol.Operation{
		Op:      protocol.OpCreate,
		Caller:  "alice",
		Kind:    protocol.KindDeadline,
		Payload: []byte(fmt.Sprintf(`{"deadline":%d}`, testutil.Monday-1)),
	})
	assert.ErrorIs(t, err, protocol.ErrDeadlinePassed)

	assert.Len(t, h.engine.Events(), events)
	assert.Zero(t, h.engine.NextID())
	assert.Empty(t, h.engine.CommitmentsOf("alice"))

	require.Len(t, h.journal.records, journaled+1, "rejections are journaled")
	rec := h.journal.records[len(h.journal.records)-1]
	assert.Equal(t, protocol.ErrorCode("DEADLINE_PASSED"), rec.Outcome)
	assert.Empty(t, rec.Events)
}

func TestExecute_UnknownCommitmentAndOperation(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec(protocol.Operation{Op: protocol.OpConfirm, Caller: "alice", CommitmentID: 9})
	assert.ErrorIs(t, err, protocol.ErrUnknownCommitment)

	h.create("alice", protocol.KindBase, 0, `{"name":"x"}`)
	_, err = h.exec(protocol.Operation{Op: "teleport", Caller: "alice", CommitmentID: 0})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedOperation)

	_, err = h.exec(protocol.Operation{Op: protocol.OpWithdraw, Caller: "alice", CommitmentID: 0, Module: "vault"})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedOperation)

	_, err = h.exec(protocol.Operation{Op: protocol.OpInit, Caller: "alice", CommitmentID: 0, Payload: []byte(`{"name":"y"}`)})
	assert.ErrorIs(t, err, protocol.ErrAlreadyInitialized)
}

func TestExecute_TimeIsMonotonic(t *testing.T) {
	h := newHarness(t)
	h.time.Set(testutil.Monday + hour)
	first := h.ok(protocol.Operation{Op: protocol.OpCreate, Caller: "alice", Kind: protocol.KindBase, Payload: []byte(`{"name":"a"}`)})

	h.time.Set(testutil.Monday)
	second := h.ok(protocol.Operation{Op: protocol.OpCreate, Caller: "alice", Kind: protocol.KindBase, Payload: []byte(`{"name":"b"}`)})
	assert.Equal(t, first.At, second.At, "time never runs backwards")

	pinned := h.ok(protocol.Operation{Op: protocol.OpCreate, Caller: "alice", Kind: protocol.KindBase, Payload: []byte(`{"name":"c"}`), At: testutil.Monday + 2*hour})
	assert.Equal(t, testutil.Monday+2*hour, pinned.At)
	assert.Equal(t, testutil.Monday+2*hour, h.engine.Now())
}

func TestExecute_TimelockTaskMovesStake(t *testing.T) {
	h := newHarness(t)
	deadline := testutil.Monday + 10*hour
	id := h.create("alice", protocol.KindTimelockingDeadlineTask, 100,
		fmt.Sprintf(`{"deadline":%d,"submission_window":%d,"timelock_duration":%d}`, deadline, hour, 2*hour))

	balances := h.engine.Balances()
	assert.Equal(t, protocol.Amount(100), balances.Escrow["commitment/0"])

	h.time.Set(deadline - 30*60)
	h.ok(protocol.Operation{Op: protocol.OpConfirm, Caller: "alice", CommitmentID: id, ProofURI: "ipfs://done"})

	balances = h.engine.Balances()
	assert.Empty(t, balances.Escrow)
	assert.Equal(t, protocol.Amount(100), balances.Paid["alice"])
	assert.True(t, h.engine.Balanced())
}

func TestExecute_StandaloneTimelock(t *testing.T) {
	h := newHarness(t)
	deadline := testutil.Monday + 10*hour
	id := h.create("alice", protocol.KindDeadline, 0, fmt.Sprintf(`{"deadline":%d,"submission_window":%d}`, deadline, hour))

	_, err := h.exec(protocol.Operation{Op: protocol.OpJoin, Caller: "bob", CommitmentID: id, Value: 30, LockDuration: 600, Module: protocol.ModuleTimelock})
	assert.ErrorIs(t, err, protocol.ErrOnlyOwnerAction)

	h.ok(protocol.Operation{Op: protocol.OpJoin, Caller: "alice", CommitmentID: id, Value: 30, LockDuration: 600, Module: protocol.ModuleTimelock})
	assert.Equal(t, protocol.Amount(30), h.engine.Balances().Escrow["timelock/0"])

	unlock, locked, err := h.engine.UnlockTime(id, protocol.ModuleTimelock, "")
	require.NoError(t, err)
	assert.Equal(t, deadline+600, unlock)
	assert.False(t, locked)

	h.time.Set(deadline + 1)
	assert.Equal(t, []PendingPenalty{{CommitmentID: id, Module: protocol.ModuleTimelock, Participant: "alice"}}, h.engine.PendingPenalties())

	h.ok(protocol.Operation{Op: protocol.OpPenalize, Caller: "keeper", CommitmentID: id, Module: protocol.ModuleTimelock})
	assert.Empty(t, h.engine.PendingPenalties())

	_, err = h.exec(protocol.Operation{Op: protocol.OpWithdraw, Caller: "alice", CommitmentID: id, Module: protocol.ModuleTimelock})
	assert.ErrorIs(t, err, protocol.ErrFundsLocked)

	h.time.Set(deadline + 600)
	res := h.ok(protocol.Operation{Op: protocol.OpWithdraw, Caller: "alice", CommitmentID: id, Module: protocol.ModuleTimelock})
	assert.Equal(t, protocol.Amount(30), res.Amount)
	assert.True(t, h.engine.Balanced())
}

func TestExecute_PartnerBetSettles(t *testing.T) {
	h := newHarness(t)
	id := h.create("alice", protocol.KindPartnerAlarmClock, 50,
		`{"alarm_time":28800,"alarm_days":[1,2,3,4,5,6,7],"missed_alarm_penalty":10,"submission_window":3600,"timezone_offset":0,"other_player":"bob"}`)
	h.ok(protocol.Operation{Op: protocol.OpStart, Caller: "bob", CommitmentID: id, Value: 50})

	recent, ok := h.engine.MostRecent("bob")
	require.True(t, ok)
	assert.Equal(t, id, recent.ID)
	assert.True(t, recent.Joined)

	h.time.Set(testutil.Monday + 7*hour + 30*60)
	h.ok(protocol.Operation{Op: protocol.OpConfirm, Caller: "alice", CommitmentID: id})

	h.time.Set(testutil.Monday + 2*day)
	standing, err := h.engine.BetStanding(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), standing)

	missed, err := h.engine.MissedDeadlines(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), missed)

	ttl, err := h.engine.TimeToNextDeadline(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, 8*hour, ttl)

	res := h.ok(protocol.Operation{Op: protocol.OpExit, Caller: "bob", CommitmentID: id})
	assert.Equal(t, protocol.Amount(40), res.Amount)
	balances := h.engine.Balances()
	assert.Equal(t, protocol.Amount(60), balances.Paid["alice"])
	assert.Equal(t, protocol.Amount(40), balances.Paid["bob"])
	assert.True(t, h.engine.Balanced())
}

func TestExecute_JournalFailureHalts(t *testing.T) {
	h := newHarness(t)
	h.journal.fail = errors.New("disk full")

	_, err := h.exec(protocol.Operation{Op: protocol.OpCreate, Caller: "alice", Kind: protocol.KindBase, Payload: []byte(`{"name":"x"}`)})
	require.Error(t, err)
	assert.True(t, IsJournalError(err))
	assert.NotNil(t, h.engine.Halted())

	h.journal.fail = nil
	_, err = h.exec(protocol.Operation{Op: protocol.OpCreate, Caller: "alice", Kind: protocol.KindBase, Payload: []byte(`{"name":"y"}`)})
	assert.True(t, IsHalted(err))
	assert.ErrorContains(t, err, "disk full")
}

func TestReplay_ReproducesState(t *testing.T) {
	h := newHarness(t)
	deadline := testutil.Monday + 10*hour
	h.create("alice", protocol.KindTimelockingDeadlineTask, 100,
		fmt.Sprintf(`{"deadline":%d,"submission_window":%d,"timelock_duration":%d}`, deadline, hour, 2*hour))
	h.create("bob", protocol.KindAlarm, 0, `{"alarm_time":28800,"alarm_days":[1,2,3,4,5],"submission_window":3600,"timezone_offset":0}`)
	_, err := h.exec(protocol.Operation{Op: protocol.OpPause, Caller: "alice", CommitmentID: 1})
	require.ErrorIs(t, err, protocol.ErrOnlyOwnerAction)

	h.time.Set(deadline + hour)
	h.ok(protocol.Operation{Op: protocol.OpConfirm, Caller: "alice", CommitmentID: 0})
	h.time.Set(deadline + 3*hour)
	h.ok(protocol.Operation{Op: protocol.OpWithdraw, Caller: "alice", CommitmentID: 0})

	replayed, err := Replay(context.Background(), "registrar", h.journal.records,
		WithTimeSource(testutil.NewManualTime(0)),
		WithLogger(testutil.DiscardLogger()),
	)
	require.NoError(t, err)

	want, err := h.engine.Digest()
	require.NoError(t, err)
	got, err := replayed.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, h.engine.Balances(), replayed.Balances())
	assert.Equal(t, h.engine.NextID(), replayed.NextID())
	assert.Equal(t, h.engine.LastSeq(), replayed.LastSeq())
	assert.Equal(t, h.engine.Commitments(), replayed.Commitments())
}

func TestReplay_DetectsDivergence(t *testing.T) {
	h := newHarness(t)
	h.create("alice", protocol.KindBase, 0, `{"name":"x"}`)

	records := append([]protocol.OperationRecord(nil), h.journal.records...)
	last := records[len(records)-1]
	last.Outcome = protocol.ErrorCode("NOT_ACTIVE")
	records[len(records)-1] = last

	_, err := Replay(context.Background(), "registrar", records, WithLogger(testutil.DiscardLogger()))
	require.Error(t, err)
	assert.True(t, IsReplayMismatch(err))
}

func TestReplay_AttachJournalAfterwards(t *testing.T) {
	h := newHarness(t)
	j := &memJournal{}

	replayed, err := Replay(context.Background(), "registrar", h.journal.records,
		WithJournal(j),
		WithTimeSource(testutil.NewManualTime(testutil.Monday)),
		WithIDGenerator(NewSequentialGenerator("next")),
	)
	require.NoError(t, err)
	assert.Empty(t, j.records, "replay does not re-journal")

	_, err = replayed.Execute(context.Background(), protocol.Operation{Op: protocol.OpCreate, Caller: "alice", Kind: protocol.KindBase, Payload: []byte(`{"name":"x"}`)})
	require.NoError(t, err)
	require.Len(t, j.records, 1)
	assert.Equal(t, int64(len(h.journal.records)+1), j.records[0].Seq)
}
