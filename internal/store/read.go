package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// MetaRegistrar records the registrar identity a journal was started with.
const MetaRegistrar = "registrar"

// ReadOperations returns every journaled operation in seq order, each with
// the events it committed. The result feeds engine.Replay.
//
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadOperations(ctx context.Context) ([]protocol.OperationRecord, error) {
	return s.readOperations(ctx, 0)
}

// ReadOperationsAfter returns the operations with seq > after.
func (s *Store) ReadOperationsAfter(ctx context.Context, after int64) ([]protocol.OperationRecord, error) {
	return s.readOperations(ctx, after)
}

func (s *Store) readOperations(ctx context.Context, after int64) ([]protocol.OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, args, at, outcome
		FROM operations
		WHERE seq > ?
		ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	records := []protocol.OperationRecord{}
	index := make(map[int64]int)
	for rows.Next() {
		var rec protocol.OperationRecord
		var args, outcome string
		if err := rows.Scan(&rec.Seq, &args, &rec.At, &outcome); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op, err := unmarshalOperation(args)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", rec.Seq, err)
		}
		rec.Operation = op
		rec.Outcome = protocol.ErrorCode(outcome)
		index[rec.Seq] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}

	events, err := s.readEvents(ctx, `WHERE op_seq > ?`, after)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		i, ok := index[ev.Seq]
		if !ok {
			return nil, fmt.Errorf("event %d/%d has no operation", ev.Seq, ev.Index)
		}
		records[i].Events = append(records[i].Events, ev)
	}

	return records, nil
}

// ReadEvents returns the committed event history ordered by (seq, index).
func (s *Store) ReadEvents(ctx context.Context) ([]protocol.Event, error) {
	return s.readEvents(ctx, "")
}

// ReadCommitmentEvents returns the events of one commitment.
func (s *Store) ReadCommitmentEvents(ctx context.Context, id uint64) ([]protocol.Event, error) {
	return s.readEvents(ctx, `WHERE commitment_id = ?`, int64(id))
}

// ReadActorEvents returns the events whose actor is the given identity.
func (s *Store) ReadActorEvents(ctx context.Context, actor protocol.Identity) ([]protocol.Event, error) {
	return s.readEvents(ctx, `WHERE actor = ?`, string(actor))
}

func (s *Store) readEvents(ctx context.Context, where string, args ...any) ([]protocol.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM events `+where+`
		ORDER BY op_seq ASC, idx ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []protocol.Event{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := unmarshalEvent(data)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM operations`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}

// Meta reads a journal-level setting. ok is false when the key is unset.
func (s *Store) Meta(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read meta %q: %w", key, err)
	}
	return value, true, nil
}
