// Package commitment implements the commitment state machine. One
// Commitment value serves every built-in kind; the Template it was
// instantiated from decides which schedule, stake and partner rules apply.
//
// Every mutating method validates fully before touching state, so a
// returned error always means the commitment is unchanged. Effects (events
// and stake movements) go to the call's buffer and are committed by the
// engine only on success.
package commitment

import (
	"github.com/pledgeworks/pledge/internal/penalty"
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/schedule"
)

// Participant is one party bound by the commitment's schedule.
type Participant struct {
	Identity protocol.Identity `json:"identity"`
	Schedule schedule.Schedule `json:"schedule"`
	Stake    protocol.Amount   `json:"stake,omitempty"`

	// Carried holds misses accumulated before a pause. The schedule is
	// rebased on resume, so its own count starts over.
	Carried uint64 `json:"carried,omitempty"`
}

// Proof is a submitted confirmation.
type Proof struct {
	Participant protocol.Identity  `json:"participant"`
	URI         string             `json:"uri,omitempty"`
	At          protocol.Timestamp `json:"at"`
}

// Commitment is one instance in the registry arena.
type Commitment struct {
	id       uint64
	handle   string
	template Template

	owner       protocol.Identity
	status      protocol.Status
	initialized bool
	name        string
	description string
	createdAt   protocol.Timestamp
	closedAt    protocol.Timestamp
	pausedAt    protocol.Timestamp

	participants []*Participant
	proofs       []Proof

	// Timelock tasks only.
	timelock *penalty.Timelock

	// Partner alarm clocks only.
	partner     protocol.Identity
	penaltyRate protocol.Amount
	alarmConfig schedule.AlarmConfig
	started     bool
}

// New creates an uninitialized instance of t.
func New(t Template, id uint64, handle string) *Commitment {
	c := &Commitment{
		id:       id,
		handle:   handle,
		template: t,
		status:   protocol.StatusInactive,
	}
	if t.Timelock {
		c.timelock = penalty.NewTimelock(protocol.ModuleCommitment)
	}
	return c
}

func (c *Commitment) ID() uint64                 { return c.id }
func (c *Commitment) Handle() string             { return c.handle }
func (c *Commitment) Kind() protocol.Kind        { return c.template.Kind }
func (c *Commitment) Template() Template         { return c.template }
func (c *Commitment) Owner() protocol.Identity   { return c.owner }
func (c *Commitment) Status() protocol.Status    { return c.status }
func (c *Commitment) Initialized() bool          { return c.initialized }
func (c *Commitment) Partner() protocol.Identity { return c.partner }
func (c *Commitment) Started() bool              { return c.started }

// CommitmentID satisfies penalty.Target.
func (c *Commitment) CommitmentID() uint64 { return c.id }

// Account is the escrow account holding this commitment's own stake.
func (c *Commitment) Account() string {
	return protocol.Account(protocol.ModuleCommitment, c.id)
}

// DeadlineWindow exposes the owner's deadline schedule, if any.
func (c *Commitment) DeadlineWindow() (open, deadline protocol.Timestamp, ok bool) {
	if len(c.participants) == 0 {
		return 0, 0, false
	}
	return c.participants[0].Schedule.DeadlineWindow()
}

// EntryRecorded reports whether the owner's one-shot entry is in.
func (c *Commitment) EntryRecorded() bool {
	if len(c.participants) == 0 {
		return false
	}
	return c.participants[0].Schedule.EntryRecorded()
}

// OwnerMisses is the owner's missed-deadline count at now.
func (c *Commitment) OwnerMisses(now protocol.Timestamp) uint64 {
	if len(c.participants) == 0 {
		return 0
	}
	return c.missed(c.participants[0], now)
}

// effectiveTime is the time misses are counted at. Counting freezes when
// the commitment pauses or closes. A commitment closed while paused stays
// frozen at the pause, since its schedule was never rebased.
func (c *Commitment) effectiveTime(now protocol.Timestamp) protocol.Timestamp {
	switch {
	case c.status == protocol.StatusPaused:
		return c.pausedAt
	case c.status.Terminal() && c.pausedAt != 0 && c.pausedAt < now:
		return c.pausedAt
	case c.status.Terminal() && c.closedAt < now:
		return c.closedAt
	}
	return now
}

func (c *Commitment) missed(p *Participant, now protocol.Timestamp) uint64 {
	return p.Carried + p.Schedule.MissedDeadlines(c.effectiveTime(now))
}

func (c *Commitment) participant(who protocol.Identity) (*Participant, error) {
	if who == "" {
		who = c.owner
	}
	for _, p := range c.participants {
		if p.Identity == who {
			return p, nil
		}
	}
	return nil, protocol.Errorf(protocol.ErrNotParticipant, "%s is not a participant of commitment %d", who, c.id)
}

// MissedDeadlines returns the participant's miss count. An empty
// participant means the owner.
func (c *Commitment) MissedDeadlines(who protocol.Identity, now protocol.Timestamp) (uint64, error) {
	if err := c.requireStarted(); err != nil {
		return 0, err
	}
	p, err := c.participant(who)
	if err != nil {
		return 0, err
	}
	return c.missed(p, now), nil
}

// TimeToNextDeadline returns the seconds until the participant's next
// deadline.
func (c *Commitment) TimeToNextDeadline(who protocol.Identity, now protocol.Timestamp) (int64, error) {
	if err := c.requireStarted(); err != nil {
		return 0, err
	}
	p, err := c.participant(who)
	if err != nil {
		return 0, err
	}
	return p.Schedule.TimeToNextDeadline(now)
}

func (c *Commitment) requireStarted() error {
	if c.template.Partner && !c.started {
		return protocol.Errorf(protocol.ErrNotStarted, "commitment %d has not started", c.id)
	}
	return nil
}

func (c *Commitment) requireOwner(call *protocol.Call) error {
	if call.Caller != c.owner {
		return protocol.Errorf(protocol.ErrOnlyOwnerAction, "%s is not the owner of commitment %d", call.Caller, c.id)
	}
	return nil
}

func (c *Commitment) requireStatus(want protocol.Status) error {
	if c.status != want {
		return protocol.Errorf(protocol.ErrNotActive, "commitment %d is %s", c.id, c.status)
	}
	return nil
}

// transition moves to status to and emits StatusChanged.
func (c *Commitment) transition(call *protocol.Call, to protocol.Status) {
	from := c.status
	c.status = to
	switch {
	case to.Terminal():
		c.closedAt = call.Now
	case to == protocol.StatusPaused:
		c.pausedAt = call.Now
	case from == protocol.StatusPaused:
		c.pausedAt = 0
	}
	call.Effects.Emit(protocol.Event{
		Type:         protocol.EventStatusChanged,
		CommitmentID: c.id,
		Kind:         c.template.Kind,
		Actor:        call.Caller,
		From:         from,
		To:           to,
	})
}

// View is a serializable snapshot of a commitment.
type View struct {
	ID                 uint64                `json:"id"`
	Handle             string                `json:"handle"`
	Kind               protocol.Kind         `json:"kind"`
	Owner              protocol.Identity     `json:"owner"`
	Status             protocol.Status       `json:"status"`
	Name               string                `json:"name,omitempty"`
	Description        string                `json:"description,omitempty"`
	CreatedAt          protocol.Timestamp    `json:"created_at"`
	ClosedAt           protocol.Timestamp    `json:"closed_at,omitempty"`
	PausedAt           protocol.Timestamp    `json:"paused_at,omitempty"`
	Participants       []Participant         `json:"participants"`
	Proofs             []Proof               `json:"proofs,omitempty"`
	Partner            protocol.Identity     `json:"partner,omitempty"`
	MissedAlarmPenalty protocol.Amount       `json:"missed_alarm_penalty,omitempty"`
	Started            bool                  `json:"started,omitempty"`
	Timelock           []penalty.Entry       `json:"timelock,omitempty"`
	Alarm              *schedule.AlarmConfig `json:"alarm,omitempty"`
}

// View copies the commitment's state.
func (c *Commitment) View() View {
	v := View{
		ID:          c.id,
		Handle:      c.handle,
		Kind:        c.template.Kind,
		Owner:       c.owner,
		Status:      c.status,
		Name:        c.name,
		Description: c.description,
		CreatedAt:   c.createdAt,
		ClosedAt:    c.closedAt,
		PausedAt:    c.pausedAt,
		Proofs:      append([]Proof(nil), c.proofs...),
	}
	v.Participants = make([]Participant, 0, len(c.participants))
	for _, p := range c.participants {
		v.Participants = append(v.Participants, *p)
	}
	if c.template.Partner {
		cfg := c.alarmConfig
		v.Partner = c.partner
		v.MissedAlarmPenalty = c.penaltyRate
		v.Started = c.started
		v.Alarm = &cfg
	}
	if c.timelock != nil {
		v.Timelock = c.timelock.Entries()
	}
	return v
}
