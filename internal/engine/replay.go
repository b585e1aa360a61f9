package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// Replay rebuilds an engine by re-executing a journal in seq order.
//
// Each record runs with its journaled time pinned. The seq, the outcome
// code and the committed event list must match what was journaled;
// anything else is a REPLAY_MISMATCH. Options apply as for New, but no
// journal is written during replay: attach one afterwards with
// AttachJournal.
func Replay(ctx context.Context, registrar protocol.Identity, records []protocol.OperationRecord, opts ...EngineOption) (*Engine, error) {
	e := New(registrar, opts...)
	journal := e.journal
	e.journal = nil

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.replayOne(ctx, rec); err != nil {
			return nil, err
		}
	}

	e.journal = journal
	e.logger.Info("replay complete", "operations", len(records), "events", len(e.events))
	return e, nil
}

func (e *Engine) replayOne(ctx context.Context, rec protocol.OperationRecord) error {
	op := rec.Operation
	op.At = rec.At

	res, err := e.Execute(ctx, op)
	if IsRuntimeError(err) {
		return err
	}

	if res.Seq != rec.Seq {
		return NewReplayMismatch(rec.Seq, "seq", strconv.FormatInt(rec.Seq, 10), strconv.FormatInt(res.Seq, 10))
	}
	if got := protocol.CodeOf(err); got != rec.Outcome {
		return NewReplayMismatch(rec.Seq, "outcome", string(rec.Outcome), string(got))
	}
	if len(res.Events) != len(rec.Events) {
		return NewReplayMismatch(rec.Seq, "event count", strconv.Itoa(len(rec.Events)), strconv.Itoa(len(res.Events)))
	}
	for i := range rec.Events {
		want, got := rec.Events[i], res.Events[i]
		if want != got {
			return NewReplayMismatch(rec.Seq, fmt.Sprintf("event %d", i), describe(want), describe(got))
		}
	}
	return nil
}

func describe(ev protocol.Event) string {
	return fmt.Sprintf("%s commitment=%d actor=%s amount=%d", ev.Type, ev.CommitmentID, ev.Actor, ev.Amount)
}
