package harness

import "github.com/pledgeworks/pledge/internal/protocol"

// TraceEvent is a committed event as it appears in traces and golden
// files. Handles, kinds and accounts are left out to keep goldens short.
type TraceEvent struct {
	Seq          int64              `json:"seq"`
	Type         protocol.EventType `json:"type"`
	CommitmentID uint64             `json:"commitment_id"`
	Actor        protocol.Identity  `json:"actor,omitempty"`
	From         protocol.Status    `json:"from,omitempty"`
	To           protocol.Status    `json:"to,omitempty"`
	Amount       protocol.Amount    `json:"amount,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation, every assertion
	// held and the journal replayed to the same history.
	Pass bool `json:"pass"`

	// Trace lists the committed events in (seq, index) order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed check.
	Errors []string `json:"errors,omitempty"`

	// Digest is the event history digest of the final engine.
	Digest string `json:"digest,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvents appends committed events to the trace.
func (r *Result) AddEvents(events []protocol.Event) {
	for _, ev := range events {
		r.Trace = append(r.Trace, TraceEvent{
			Seq:          ev.Seq,
			Type:         ev.Type,
			CommitmentID: ev.CommitmentID,
			Actor:        ev.Actor,
			From:         ev.From,
			To:           ev.To,
			Amount:       ev.Amount,
		})
	}
}
