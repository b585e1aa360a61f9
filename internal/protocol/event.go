package protocol

import "fmt"

// EventType names a committed event.
type EventType string

const (
	EventKindRegistered        EventType = "KindRegistered"
	EventCommitmentCreation    EventType = "CommitmentCreation"
	EventUserJoined            EventType = "UserJoined"
	EventStatusChanged         EventType = "StatusChanged"
	EventConfirmationSubmitted EventType = "ConfirmationSubmitted"
	EventPenaltyJoined         EventType = "PenaltyJoined"
	EventPenalized             EventType = "Penalized"
	EventStakeDeposited        EventType = "StakeDeposited"
	EventStakeReleased         EventType = "StakeReleased"
)

// Event is a record emitted by a successful operation. Events are the only
// enumeration mechanism external readers get: CommitmentsOf is a query over
// committed CommitmentCreation and UserJoined events.
//
// Seq and Index are assigned by the engine at commit time. Seq is the
// operation's sequence number and Index the event's position within it,
// so (Seq, Index) totally orders the event history.
type Event struct {
	Seq          int64     `json:"seq"`
	Index        int       `json:"index"`
	Type         EventType `json:"type"`
	CommitmentID uint64    `json:"commitment_id"`
	Kind         Kind      `json:"kind,omitempty"`
	Actor        Identity  `json:"actor,omitempty"`
	Handle       string    `json:"handle,omitempty"`
	From         Status    `json:"from,omitempty"`
	To           Status    `json:"to,omitempty"`
	ProofURI     string    `json:"proof_uri,omitempty"`
	Account      string    `json:"account,omitempty"`
	Amount       Amount    `json:"amount,omitempty"`
	UnlockAt     Timestamp `json:"unlock_at,omitempty"`
	At           Timestamp `json:"at"`
}

// Direction of a stake movement relative to an escrow account.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Movement moves stake between a party and an escrow account.
type Movement struct {
	Account   string
	Party     Identity
	Amount    Amount
	Direction Direction
}

// Account names the escrow account of a module for a commitment.
// The commitment module escrows creation stakes; the standalone timelock
// module escrows stakes joined through it.
func Account(module string, commitmentID uint64) string {
	return fmt.Sprintf("%s/%d", module, commitmentID)
}

// Effects buffers what an operation would do. The engine applies the
// buffer only if the operation returns without error.
type Effects struct {
	Events    []Event
	Movements []Movement
}

// Emit records an event.
func (e *Effects) Emit(ev Event) {
	e.Events = append(e.Events, ev)
}

// Deposit moves amount from party into account.
func (e *Effects) Deposit(account string, commitmentID uint64, party Identity, amount Amount) {
	if amount == 0 {
		return
	}
	e.Movements = append(e.Movements, Movement{
		Account:   account,
		Party:     party,
		Amount:    amount,
		Direction: DirectionIn,
	})
	e.Emit(Event{
		Type:         EventStakeDeposited,
		CommitmentID: commitmentID,
		Actor:        party,
		Account:      account,
		Amount:       amount,
	})
}

// Release moves amount from account to party.
func (e *Effects) Release(account string, commitmentID uint64, party Identity, amount Amount) {
	if amount == 0 {
		return
	}
	e.Movements = append(e.Movements, Movement{
		Account:   account,
		Party:     party,
		Amount:    amount,
		Direction: DirectionOut,
	})
	e.Emit(Event{
		Type:         EventStakeReleased,
		CommitmentID: commitmentID,
		Actor:        party,
		Account:      account,
		Amount:       amount,
	})
}

// Released sums the amount released to party in this buffer.
func (e *Effects) Released(party Identity) Amount {
	var total Amount
	for _, m := range e.Movements {
		if m.Direction == DirectionOut && m.Party == party {
			total += m.Amount
		}
	}
	return total
}

// Reset discards everything buffered.
func (e *Effects) Reset() {
	e.Events = nil
	e.Movements = nil
}
