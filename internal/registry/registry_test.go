package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pledgeworks/pledge/internal/commitment"
	"github.com/pledgeworks/pledge/internal/protocol"
)

const monday int64 = 1704067200

func withBuiltins(t *testing.T) *Registry {
	t.Helper()
	r := New("registrar")
	for _, tmpl := range commitment.Catalog() {
		require.NoError(t, r.RegisterKind(protocol.NewCall("registrar", monday, 0), tmpl))
	}
	return r
}

func TestRegisterKind(t *testing.T) {
	r := New("registrar")
	tmpl, _ := commitment.Builtin(protocol.KindBase)

	err := r.RegisterKind(protocol.NewCall("mallory", monday, 0), tmpl)
	assert.ErrorIs(t, err, protocol.ErrUnauthorized)

	call := protocol.NewCall("registrar", monday, 0)
	require.NoError(t, r.RegisterKind(call, tmpl))
	require.Len(t, call.Effects.Events, 1)
	assert.Equal(t, protocol.EventKindRegistered, call.Effects.Events[0].Type)
	assert.Equal(t, []protocol.Kind{protocol.KindBase}, r.Kinds())

	// Duplicate is reported before authorization.
	err = r.RegisterKind(protocol.NewCall("mallory", monday, 0), tmpl)
	assert.ErrorIs(t, err, protocol.ErrAlreadyRegistered)
}

func TestCreate_AssignsSequentialIDs(t *testing.T) {
	r := withBuiltins(t)

	for want := uint64(0); want < 3; want++ {
		call := protocol.NewCall("alice", monday, 0)
		id, err := r.Create(call, protocol.KindBase, []byte(`{"name":"n"}`))
		require.NoError(t, err)
		assert.Equal(t, want, id)

		require.NotEmpty(t, call.Effects.Events)
		created := call.Effects.Events[0]
		assert.Equal(t, protocol.EventCommitmentCreation, created.Type)
		assert.Equal(t, id, created.CommitmentID)
		assert.Len(t, created.Handle, 32)
		r.Index(call.Effects.Events)
	}
	assert.Equal(t, uint64(3), r.NextID())
	ids := make([]uint64, 0, 3)
	for _, e := range r.CommitmentsOf("alice") {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []uint64{0, 1, 2}, ids)
}

func TestCreate_FailureLeavesNoTrace(t *testing.T) {
	r := withBuiltins(t)

	call := protocol.NewCall("alice", monday, 0)
	_, err := r.Create(call, protocol.KindDeadline, []byte(fmt.Sprintf(`{"deadline":%d}`, monday-1)))
	assert.ErrorIs(t, err, protocol.ErrDeadlinePassed)
	assert.Empty(t, call.Effects.Events)
	assert.Empty(t, call.Effects.Movements)
	assert.Zero(t, r.NextID())

	_, err = r.Get(0)
	assert.ErrorIs(t, err, protocol.ErrUnknownCommitment)
}

func TestCreate_UnregisteredKind(t *testing.T) {
	r := New("registrar")
	_, err := r.Create(protocol.NewCall("alice", monday, 0), protocol.KindBase, []byte(`{"name":"n"}`))
	assert.ErrorIs(t, err, protocol.ErrKindNotRegistered)
	assert.ErrorIs(t, err, protocol.ErrTypeNotRegistered)
}

func TestCreate_HandlesAreDeterministic(t *testing.T) {
	a, b := withBuiltins(t), withBuiltins(t)
	_, err := a.Create(protocol.NewCall("alice", monday, 0), protocol.KindBase, []byte(`{"name":"n"}`))
	require.NoError(t, err)
	_, err = b.Create(protocol.NewCall("alice", monday+99, 0), protocol.KindBase, []byte(`{"name":"other"}`))
	require.NoError(t, err)

	ca, _ := a.Get(0)
	cb, _ := b.Get(0)
	assert.Equal(t, ca.Handle(), cb.Handle())
}

// stamp assigns commit positions the way the engine does before indexing.
func stamp(seq int64, events []protocol.Event) []protocol.Event {
	for i := range events {
		events[i].Seq = seq
		events[i].Index = i
	}
	return events
}

func TestCommitmentsOf_IncludesJoins(t *testing.T) {
	r := withBuiltins(t)
	payload := `{"alarm_time":28800,"alarm_days":[1,2,3,4,5],"missed_alarm_penalty":5,"submission_window":3600,"timezone_offset":0,"other_player":"bob"}`

	create := protocol.NewCall("alice", monday, 20)
	id, err := r.Create(create, protocol.KindPartnerAlarmClock, []byte(payload))
	require.NoError(t, err)
	r.Index(stamp(1, create.Effects.Events))

	_, ok := r.MostRecent("bob")
	assert.False(t, ok)

	c, err := r.Get(id)
	require.NoError(t, err)
	start := protocol.NewCall("bob", monday, 20)
	require.NoError(t, c.Start(start))
	r.Index(stamp(2, start.Effects.Events))

	got, ok := r.MostRecent("bob")
	require.True(t, ok)
	assert.Equal(t, Entry{ID: id, Kind: protocol.KindPartnerAlarmClock, Handle: c.Handle(), Seq: 2, Index: 0, Joined: true}, got)

	alice := r.CommitmentsOf("alice")
	require.Len(t, alice, 1)
	assert.Equal(t, Entry{ID: id, Kind: protocol.KindPartnerAlarmClock, Handle: c.Handle(), Seq: 1, Index: 0}, alice[0])
	assert.Empty(t, r.CommitmentsOf("carol"))
}

func TestCommitmentsOf_MergesCreationsAndJoinsInCommitOrder(t *testing.T) {
	r := New("registrar")
	r.Index([]protocol.Event{
		{Seq: 2, Index: 0, Type: protocol.EventCommitmentCreation, CommitmentID: 0, Kind: protocol.KindAlarm, Actor: "bob", Handle: "h0"},
	})
	r.Index([]protocol.Event{
		{Seq: 3, Index: 0, Type: protocol.EventCommitmentCreation, CommitmentID: 1, Kind: protocol.KindPartnerAlarmClock, Actor: "alice", Handle: "h1"},
		{Seq: 3, Index: 1, Type: protocol.EventStatusChanged, CommitmentID: 1, Actor: "alice"},
	})
	r.Index([]protocol.Event{
		{Seq: 4, Index: 0, Type: protocol.EventUserJoined, CommitmentID: 1, Kind: protocol.KindPartnerAlarmClock, Actor: "bob", Handle: "h1"},
	})
	r.Index([]protocol.Event{
		{Seq: 5, Index: 0, Type: protocol.EventCommitmentCreation, CommitmentID: 2, Kind: protocol.KindBase, Actor: "bob", Handle: "h2"},
	})

	assert.Equal(t, []Entry{
		{ID: 0, Kind: protocol.KindAlarm, Handle: "h0", Seq: 2},
		{ID: 1, Kind: protocol.KindPartnerAlarmClock, Handle: "h1", Seq: 4, Joined: true},
		{ID: 2, Kind: protocol.KindBase, Handle: "h2", Seq: 5},
	}, r.CommitmentsOf("bob"))

	recent, ok := r.MostRecent("bob")
	require.True(t, ok)
	assert.Equal(t, uint64(2), recent.ID)

	// The log is built from events alone; the arena is untouched.
	assert.Zero(t, r.NextID())
}
