package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// createTestStore opens a journal in a per-test temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createRecord(seq int64, id string, events ...protocol.Event) protocol.OperationRecord {
	for i := range events {
		events[i].Seq = seq
		events[i].Index = i
		events[i].At = 1704067200 + seq
	}
	return protocol.OperationRecord{
		Seq: seq,
		Operation: protocol.Operation{
			ID:      id,
			Op:      protocol.OpCreate,
			Caller:  "alice",
			Kind:    protocol.KindBase,
			Payload: []byte(`{"name":"walk","description":"<daily>"}`),
			At:      1704067200 + seq,
		},
		At:     1704067200 + seq,
		Events: events,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"operations", "events", "meta"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("user_version = %d, want %d", version, len(migrations))
	}

	for _, index := range []string{"idx_events_actor", "idx_operations_caller"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			index,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q not found: %v", index, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/nonexistent/dir/test.db"); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

func TestAppend_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	created := createRecord(1, "op-1",
		protocol.Event{Type: protocol.EventCommitmentCreation, CommitmentID: 0, Kind: protocol.KindBase, Actor: "alice", Handle: "abc"},
		protocol.Event{Type: protocol.EventStatusChanged, Actor: "alice", From: protocol.StatusInactive, To: protocol.StatusActive},
	)
	rejected := protocol.OperationRecord{
		Seq:       2,
		Operation: protocol.Operation{ID: "op-2", Op: protocol.OpConfirm, Caller: "bob", At: 1704067300},
		At:        1704067300,
		Outcome:   "ONLY_OWNER_ACTION",
	}

	for _, rec := range []protocol.OperationRecord{created, rejected} {
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%d) failed: %v", rec.Seq, err)
		}
	}

	got, err := s.ReadOperations(ctx)
	if err != nil {
		t.Fatalf("ReadOperations() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if !reflect.DeepEqual(got[0].Events, created.Events) {
		t.Errorf("events = %+v, want %+v", got[0].Events, created.Events)
	}
	if got[0].Operation.ID != "op-1" || got[0].Operation.Kind != protocol.KindBase {
		t.Errorf("operation = %+v", got[0].Operation)
	}
	if got[1].Outcome != "ONLY_OWNER_ACTION" || got[1].Succeeded() {
		t.Errorf("outcome = %q, want ONLY_OWNER_ACTION", got[1].Outcome)
	}
	if len(got[1].Events) != 0 {
		t.Errorf("rejected op has %d events", len(got[1].Events))
	}

	last, err := s.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if last != 2 {
		t.Errorf("LastSeq() = %d, want 2", last)
	}

	after, err := s.ReadOperationsAfter(ctx, 1)
	if err != nil {
		t.Fatalf("ReadOperationsAfter() failed: %v", err)
	}
	if len(after) != 1 || after[0].Seq != 2 {
		t.Errorf("ReadOperationsAfter(1) = %+v", after)
	}
}

func TestAppend_CanonicalArgs(t *testing.T) {
	s := createTestStore(t)
	rec := createRecord(1, "op-1")
	rec.Operation.Payload = []byte(`{"name": "walk", "description": "a<b"}`)

	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	var args string
	if err := s.db.QueryRow("SELECT args FROM operations WHERE seq = 1").Scan(&args); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	want := `{"at":1704067201,"caller":"alice","id":"op-1","kind":"BaseCommitment","op":"create","payload":{"description":"a<b","name":"walk"}}`
	if args != want {
		t.Errorf("args = %s\nwant  %s", args, want)
	}
}

func TestAppend_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := createRecord(1, "op-1", protocol.Event{Type: protocol.EventKindRegistered, Kind: protocol.KindBase})

	for i := 0; i < 2; i++ {
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append() #%d failed: %v", i, err)
		}
	}

	var ops, events int
	s.db.QueryRow("SELECT COUNT(*) FROM operations").Scan(&ops)
	s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&events)
	if ops != 1 || events != 1 {
		t.Errorf("operations = %d, events = %d; want 1 and 1", ops, events)
	}
}

func TestAppend_ConflictingSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, createRecord(1, "op-1")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := s.Append(ctx, createRecord(1, "op-other")); err == nil {
		t.Error("expected error for a different operation at the same seq")
	}
}

func TestReadEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.Append(ctx, createRecord(1, "op-1",
		protocol.Event{Type: protocol.EventCommitmentCreation, CommitmentID: 0, Actor: "alice"},
	))
	s.Append(ctx, createRecord(2, "op-2",
		protocol.Event{Type: protocol.EventCommitmentCreation, CommitmentID: 1, Actor: "bob"},
		protocol.Event{Type: protocol.EventUserJoined, CommitmentID: 1, Actor: "alice"},
	))

	all, err := s.ReadEvents(ctx)
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}

	byCommitment, err := s.ReadCommitmentEvents(ctx, 1)
	if err != nil {
		t.Fatalf("ReadCommitmentEvents() failed: %v", err)
	}
	if len(byCommitment) != 2 || byCommitment[1].Type != protocol.EventUserJoined {
		t.Errorf("ReadCommitmentEvents(1) = %+v", byCommitment)
	}

	byActor, err := s.ReadActorEvents(ctx, "alice")
	if err != nil {
		t.Fatalf("ReadActorEvents() failed: %v", err)
	}
	if len(byActor) != 2 || byActor[0].Seq != 1 || byActor[1].Seq != 2 {
		t.Errorf("ReadActorEvents(alice) = %+v", byActor)
	}
}

func TestReadOperations_Empty(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ReadOperations(context.Background())
	if err != nil {
		t.Fatalf("ReadOperations() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ReadOperations() = %#v, want empty slice", got)
	}
	last, _ := s.LastSeq(context.Background())
	if last != 0 {
		t.Errorf("LastSeq() = %d, want 0", last)
	}
}

func TestMeta(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Meta(ctx, MetaRegistrar); err != nil || ok {
		t.Fatalf("Meta() on empty store = ok %v, err %v", ok, err)
	}
	if err := s.SetMeta(ctx, MetaRegistrar, "alice"); err != nil {
		t.Fatalf("SetMeta() failed: %v", err)
	}
	if err := s.SetMeta(ctx, MetaRegistrar, "bob"); err != nil {
		t.Fatalf("SetMeta() overwrite failed: %v", err)
	}
	v, ok, err := s.Meta(ctx, MetaRegistrar)
	if err != nil || !ok || v != "bob" {
		t.Errorf("Meta() = %q, %v, %v; want bob", v, ok, err)
	}
}
