// Package penalty implements enforcement modules that escrow stake against
// a commitment and lock it when the commitment reports a missed deadline.
package penalty

import (
	"sort"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// Target is the read-only view of a commitment the timelock enforces.
// The timelock never mutates its target.
type Target interface {
	CommitmentID() uint64
	Owner() protocol.Identity
	Status() protocol.Status
	DeadlineWindow() (open, deadline protocol.Timestamp, ok bool)
	EntryRecorded() bool
	OwnerMisses(now protocol.Timestamp) uint64
}

// Entry is the penalty state of one participant in one commitment.
type Entry struct {
	CommitmentID uint64             `json:"commitment_id"`
	Participant  protocol.Identity  `json:"participant"`
	StakeHeld    protocol.Amount    `json:"stake_held"`
	LockDuration int64              `json:"lock_duration"`
	UnlockAt     protocol.Timestamp `json:"unlock_at"`
	Locked       bool               `json:"locked"`

	// Penalized is the miss count already accounted for. A new lock
	// requires the target to report more misses than this.
	Penalized uint64 `json:"penalized"`
}

type entryKey struct {
	id          uint64
	participant protocol.Identity
}

// Timelock escrows stake per (commitment, participant) and locks it until
// deadline + lockDuration once a miss is penalized.
type Timelock struct {
	module  string
	entries map[entryKey]*Entry
}

// NewTimelock creates a timelock whose stake lives in the escrow accounts
// of module. The standalone module uses protocol.ModuleTimelock; a
// timelock embedded in a commitment uses the commitment's own account.
func NewTimelock(module string) *Timelock {
	return &Timelock{
		module:  module,
		entries: make(map[entryKey]*Entry),
	}
}

// Module returns the escrow module name.
func (t *Timelock) Module() string {
	return t.module
}

// Entry returns a copy of the participant's entry.
func (t *Timelock) Entry(id uint64, participant protocol.Identity) (Entry, bool) {
	e, ok := t.entries[entryKey{id, participant}]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries ordered by commitment then participant.
func (t *Timelock) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommitmentID != out[j].CommitmentID {
			return out[i].CommitmentID < out[j].CommitmentID
		}
		return out[i].Participant < out[j].Participant
	})
	return out
}

// Join escrows call.Value for the caller against target. The unlock time
// is fixed here, at the target's deadline plus lockDuration.
func (t *Timelock) Join(call *protocol.Call, target Target, lockDuration int64) error {
	if call.Value == 0 {
		return protocol.ErrStakeValueNotSent
	}
	if call.Caller != target.Owner() {
		return protocol.Errorf(protocol.ErrOnlyOwnerAction, "%s is not the owner of commitment %d", call.Caller, target.CommitmentID())
	}
	_, deadline, ok := target.DeadlineWindow()
	if !ok {
		return protocol.Errorf(protocol.ErrIncompatibleCommitType, "commitment %d has no deadline schedule", target.CommitmentID())
	}
	if lockDuration <= 0 {
		return protocol.Errorf(protocol.ErrInvalidLockDuration, "lock duration %d", lockDuration)
	}
	if target.Status() != protocol.StatusActive {
		return protocol.Errorf(protocol.ErrNotActive, "commitment %d is %s", target.CommitmentID(), target.Status())
	}
	key := entryKey{target.CommitmentID(), call.Caller}
	if _, exists := t.entries[key]; exists {
		return protocol.Errorf(protocol.ErrAlreadyJoined, "%s already joined commitment %d", call.Caller, target.CommitmentID())
	}

	e := &Entry{
		CommitmentID: target.CommitmentID(),
		Participant:  call.Caller,
		StakeHeld:    call.Value,
		LockDuration: lockDuration,
		UnlockAt:     deadline + lockDuration,
	}
	t.entries[key] = e

	call.Effects.Deposit(t.account(target), target.CommitmentID(), call.Caller, call.Value)
	call.Effects.Emit(protocol.Event{
		Type:         protocol.EventPenaltyJoined,
		CommitmentID: target.CommitmentID(),
		Actor:        call.Caller,
		Account:      t.account(target),
		Amount:       call.Value,
		UnlockAt:     e.UnlockAt,
	})
	return nil
}

// Penalize locks the participant's stake for a miss not yet accounted for.
// Anyone may call it. The unlock time is never extended.
func (t *Timelock) Penalize(call *protocol.Call, target Target, participant protocol.Identity) error {
	e, ok := t.entries[entryKey{target.CommitmentID(), participant}]
	if !ok {
		return protocol.Errorf(protocol.ErrNotParticipant, "%s has not joined commitment %d", participant, target.CommitmentID())
	}
	missed := target.OwnerMisses(call.Now)
	if missed == 0 || missed <= e.Penalized {
		return protocol.Errorf(protocol.ErrNothingToPenalize, "missed %d, already penalized %d", missed, e.Penalized)
	}
	if e.StakeHeld == 0 {
		return protocol.Errorf(protocol.ErrNothingToPenalize, "no stake held for %s", participant)
	}
	t.lock(call, target, e, missed)
	return nil
}

func (t *Timelock) lock(call *protocol.Call, target Target, e *Entry, missed uint64) {
	e.Penalized = missed
	e.Locked = true
	call.Effects.Emit(protocol.Event{
		Type:         protocol.EventPenalized,
		CommitmentID: target.CommitmentID(),
		Actor:        e.Participant,
		Amount:       e.StakeHeld,
		UnlockAt:     e.UnlockAt,
	})
}

// Pending reports whether the participant has stake held and a miss not
// yet penalized.
func (t *Timelock) Pending(target Target, participant protocol.Identity, now protocol.Timestamp) bool {
	e, ok := t.entries[entryKey{target.CommitmentID(), participant}]
	if !ok || e.StakeHeld == 0 {
		return false
	}
	missed := target.OwnerMisses(now)
	return missed > 0 && missed > e.Penalized
}

// Locked reports whether any participant of the commitment is locked.
func (t *Timelock) Locked(id uint64) bool {
	for k, e := range t.entries {
		if k.id == id && e.Locked && e.StakeHeld > 0 {
			return true
		}
	}
	return false
}

// Withdraw returns the caller's held stake when the rules allow it. The
// rules are evaluated in order:
//
//  1. nothing held: no-op returning 0
//  2. locked: pays once now >= UnlockAt, else FUNDS_LOCKED
//  3. before the submission window opens: pays
//  4. an unpenalized miss: applies the penalty, pays only if already unlocked
//  5. entry recorded or target terminal: pays
//  6. otherwise CANT_WITHDRAW_IN_SUBMISSION_WINDOW
//
// Payment zeroes StakeHeld before the release effect is emitted.
func (t *Timelock) Withdraw(call *protocol.Call, target Target) (protocol.Amount, error) {
	e, ok := t.entries[entryKey{target.CommitmentID(), call.Caller}]
	if !ok || e.StakeHeld == 0 {
		return 0, nil
	}

	if e.Locked {
		if call.Now < e.UnlockAt {
			return 0, protocol.Errorf(protocol.ErrFundsLocked, "locked until %d", e.UnlockAt)
		}
		return t.pay(call, target, e), nil
	}

	open, _, ok := target.DeadlineWindow()
	if !ok {
		return 0, protocol.Errorf(protocol.ErrIncompatibleCommitType, "commitment %d has no deadline schedule", target.CommitmentID())
	}
	if call.Now < open {
		return t.pay(call, target, e), nil
	}

	if missed := target.OwnerMisses(call.Now); missed > e.Penalized {
		t.lock(call, target, e, missed)
		if call.Now >= e.UnlockAt {
			return t.pay(call, target, e), nil
		}
		return 0, nil
	}

	if target.EntryRecorded() || target.Status().Terminal() {
		return t.pay(call, target, e), nil
	}
	return 0, protocol.Errorf(protocol.ErrCantWithdrawInSubmissionWindow, "window opened at %d", open)
}

func (t *Timelock) pay(call *protocol.Call, target Target, e *Entry) protocol.Amount {
	amount := e.StakeHeld
	e.StakeHeld = 0
	e.Locked = false
	call.Effects.Release(t.account(target), target.CommitmentID(), e.Participant, amount)
	return amount
}

func (t *Timelock) account(target Target) string {
	return protocol.Account(t.module, target.CommitmentID())
}

// UnlockTime returns the participant's unlock time and whether the stake
// is currently locked.
func (t *Timelock) UnlockTime(id uint64, participant protocol.Identity) (protocol.Timestamp, bool, error) {
	e, ok := t.entries[entryKey{id, participant}]
	if !ok {
		return 0, false, protocol.Errorf(protocol.ErrNotParticipant, "%s has not joined commitment %d", participant, id)
	}
	return e.UnlockAt, e.Locked, nil
}
