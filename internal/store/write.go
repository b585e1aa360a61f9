package store

import (
	"context"
	"fmt"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// Append journals one executed operation and the events it committed in a
// single transaction. It satisfies engine.Journal.
//
// Appending the same record twice is a no-op: the operation insert uses
// ON CONFLICT DO NOTHING, and a conflicting seq is only accepted when it
// carries the same operation id. A different operation at an already
// journaled seq means two writers raced, and is an error.
func (s *Store) Append(ctx context.Context, rec protocol.OperationRecord) error {
	args, err := marshalOperation(rec.Operation)
	if err != nil {
		return fmt.Errorf("write operation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write operation: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO operations
		(seq, op_id, op, caller, commitment_id, args, at, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.Seq,
		rec.Operation.ID,
		string(rec.Operation.Op),
		string(rec.Operation.Caller),
		int64(rec.Operation.CommitmentID),
		args,
		rec.At,
		string(rec.Outcome),
	)
	if err != nil {
		return fmt.Errorf("write operation: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write operation: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT op_id FROM operations WHERE seq = ?`, rec.Seq).Scan(&existing)
		if err != nil {
			return fmt.Errorf("write operation: seq %d or id %q already journaled: %w", rec.Seq, rec.Operation.ID, err)
		}
		if existing != rec.Operation.ID {
			return fmt.Errorf("write operation: seq %d already journaled as %q", rec.Seq, existing)
		}
		return tx.Commit()
	}

	for _, ev := range rec.Events {
		data, err := marshalEvent(ev)
		if err != nil {
			return fmt.Errorf("write operation: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events
			(op_seq, idx, type, commitment_id, actor, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(op_seq, idx) DO NOTHING
		`,
			rec.Seq,
			ev.Index,
			string(ev.Type),
			int64(ev.CommitmentID),
			string(ev.Actor),
			data,
		)
		if err != nil {
			return fmt.Errorf("write operation: event %d: %w", ev.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write operation: commit: %w", err)
	}
	return nil
}

// SetMeta stores a journal-level setting, replacing any previous value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %q: %w", key, err)
	}
	return nil
}
