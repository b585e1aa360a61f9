package engine

import (
	"github.com/pledgeworks/pledge/internal/canon"
	"github.com/pledgeworks/pledge/internal/commitment"
	"github.com/pledgeworks/pledge/internal/ledger"
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/registry"
)

// Reads take the engine lock and never mutate. Time-dependent reads are
// evaluated at max(time source, last operation time).

func (e *Engine) readTime() protocol.Timestamp {
	now := e.time.Now()
	if now < e.lastAt {
		return e.lastAt
	}
	return now
}

// Now is the time reads are evaluated at.
func (e *Engine) Now() protocol.Timestamp {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readTime()
}

func (e *Engine) get(id uint64) (*commitment.Commitment, error) {
	return e.registry.Get(id)
}

// Commitment returns a snapshot of one instance.
func (e *Engine) Commitment(id uint64) (commitment.View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.get(id)
	if err != nil {
		return commitment.View{}, err
	}
	return c.View(), nil
}

// Commitments returns snapshots of every instance in id order.
func (e *Engine) Commitments() []commitment.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.registry.All()
	out := make([]commitment.View, 0, len(all))
	for _, c := range all {
		out = append(out, c.View())
	}
	return out
}

func (e *Engine) Status(id uint64) (protocol.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.get(id)
	if err != nil {
		return "", err
	}
	return c.Status(), nil
}

func (e *Engine) Owner(id uint64) (protocol.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.get(id)
	if err != nil {
		return "", err
	}
	return c.Owner(), nil
}

// MissedDeadlines counts a participant's misses. An empty participant is
// the owner.
func (e *Engine) MissedDeadlines(id uint64, participant protocol.Identity) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.get(id)
	if err != nil {
		return 0, err
	}
	return c.MissedDeadlines(participant, e.readTime())
}

func (e *Engine) TimeToNextDeadline(id uint64, participant protocol.Identity) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.get(id)
	if err != nil {
		return 0, err
	}
	return c.TimeToNextDeadline(participant, e.readTime())
}

func (e *Engine) BetStanding(id uint64, participant protocol.Identity) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.get(id)
	if err != nil {
		return 0, err
	}
	return c.BetStanding(participant, e.readTime())
}

// UnlockTime reports the unlock time and lock state of a participant's
// stake in the given penalty module.
func (e *Engine) UnlockTime(id uint64, module string, participant protocol.Identity) (protocol.Timestamp, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.get(id)
	if err != nil {
		return 0, false, err
	}
	switch module {
	case "":
		return c.UnlockTime(participant)
	case protocol.ModuleTimelock:
		if participant == "" {
			participant = c.Owner()
		}
		return e.timelock.UnlockTime(id, participant)
	}
	return 0, false, unknownModule(module)
}

func (e *Engine) CommitmentsOf(user protocol.Identity) []registry.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.CommitmentsOf(user)
}

func (e *Engine) MostRecent(user protocol.Identity) (registry.Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.MostRecent(user)
}

func (e *Engine) NextID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.NextID()
}

func (e *Engine) Kinds() []protocol.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Kinds()
}

// PendingPenalty is a penalize call that would lock stake right now.
type PendingPenalty struct {
	CommitmentID uint64            `json:"commitment_id"`
	Module       string            `json:"module,omitempty"`
	Participant  protocol.Identity `json:"participant"`
}

// PendingPenalties lists every penalize call that would currently
// succeed, in commitment order, embedded timelock first.
func (e *Engine) PendingPenalties() []PendingPenalty {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.readTime()
	var out []PendingPenalty
	for _, c := range e.registry.All() {
		if c.PenaltyPending(now) {
			out = append(out, PendingPenalty{CommitmentID: c.ID(), Participant: c.Owner()})
		}
	}
	for _, entry := range e.timelock.Entries() {
		c, err := e.get(entry.CommitmentID)
		if err != nil {
			continue
		}
		if e.timelock.Pending(c, entry.Participant, now) {
			out = append(out, PendingPenalty{
				CommitmentID: entry.CommitmentID,
				Module:       protocol.ModuleTimelock,
				Participant:  entry.Participant,
			})
		}
	}
	return out
}

// Events returns a copy of the committed event history.
func (e *Engine) Events() []protocol.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Event(nil), e.events...)
}

// Balances snapshots the vault.
func (e *Engine) Balances() ledger.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.Snapshot()
}

// Balanced checks stake conservation.
func (e *Engine) Balanced() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.Balanced()
}

// Digest hashes the committed event history.
func (e *Engine) Digest() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return canon.HistoryDigest(e.events)
}
