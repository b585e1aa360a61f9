package commitment

import (
	"errors"

	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/schedule"
)

// Init binds the owner, validates the kind's payload and activates the
// commitment. It runs exactly once, inside the registry's create.
func (c *Commitment) Init(call *protocol.Call, payload []byte) error {
	if c.initialized {
		return protocol.Errorf(protocol.ErrAlreadyInitialized, "commitment %d is already initialized", c.id)
	}
	if call.Value > 0 && !c.template.Staked {
		return protocol.Errorf(protocol.ErrStakeNotAccepted, "%s does not take stake", c.template.Kind)
	}

	var err error
	switch c.template.Kind {
	case protocol.KindBase:
		err = c.initBase(call, payload)
	case protocol.KindDeadline:
		err = c.initDeadline(call, payload)
	case protocol.KindAlarm:
		err = c.initAlarm(call, payload)
	case protocol.KindTimelockingDeadlineTask:
		err = c.initTimelockTask(call, payload)
	case protocol.KindPartnerAlarmClock:
		err = c.initPartnerAlarm(call, payload)
	default:
		err = protocol.Errorf(protocol.ErrUnsupportedOperation, "no initializer for kind %s", c.template.Kind)
	}
	return err
}

// activate records the owner and moves INACTIVE to ACTIVE.
func (c *Commitment) activate(call *protocol.Call, owner *Participant) {
	c.owner = call.Caller
	c.initialized = true
	c.createdAt = call.Now
	c.participants = []*Participant{owner}
	c.transition(call, protocol.StatusActive)
}

func (c *Commitment) initBase(call *protocol.Call, payload []byte) error {
	var p basePayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	if p.Name == "" {
		return protocol.Errorf(protocol.ErrInvalidPayload, "name is required")
	}
	c.name = p.Name
	c.description = p.Description
	c.activate(call, &Participant{Identity: call.Caller, Schedule: schedule.None()})
	return nil
}

func (c *Commitment) initDeadline(call *protocol.Call, payload []byte) error {
	var p deadlinePayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	d, err := schedule.NewDeadline(p.Deadline, p.SubmissionWindow, call.Now)
	if err != nil {
		return err
	}
	c.description = p.TaskDescription
	c.activate(call, &Participant{Identity: call.Caller, Schedule: schedule.FromDeadline(d)})
	return nil
}

func (c *Commitment) initAlarm(call *protocol.Call, payload []byte) error {
	var p alarmPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	a, err := schedule.NewAlarm(p.config(), call.Now)
	if err != nil {
		return err
	}
	c.description = p.Description
	c.activate(call, &Participant{Identity: call.Caller, Schedule: schedule.FromAlarm(a)})
	return nil
}

func (c *Commitment) initTimelockTask(call *protocol.Call, payload []byte) error {
	var p timelockTaskPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	if call.Value == 0 {
		return protocol.ErrStakeValueNotSent
	}
	if p.TimelockDuration <= 0 {
		return protocol.Errorf(protocol.ErrInvalidLockDuration, "timelock duration %d", p.TimelockDuration)
	}
	d, err := schedule.NewDeadline(p.Deadline, p.SubmissionWindow, call.Now)
	if err != nil {
		return err
	}

	c.description = p.TaskDescription
	c.activate(call, &Participant{Identity: call.Caller, Schedule: schedule.FromDeadline(d)})
	// The checks Join repeats (owner, window, duration, status) all hold here.
	return c.timelock.Join(call, c, p.TimelockDuration)
}

func (c *Commitment) initPartnerAlarm(call *protocol.Call, payload []byte) error {
	var p partnerAlarmPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	if call.Value == 0 {
		return protocol.ErrStakeValueNotSent
	}
	if err := p.config().Validate(); err != nil {
		return err
	}
	if p.OtherPlayer == "" || p.OtherPlayer == call.Caller {
		return protocol.Errorf(protocol.ErrInvalidPayload, "other_player must name a second identity")
	}
	if p.MissedAlarmPenalty == 0 {
		return protocol.Errorf(protocol.ErrInvalidPayload, "missed_alarm_penalty must be positive")
	}

	cfg := p.config()
	cfg.Days = append([]int(nil), cfg.Days...)
	c.alarmConfig = cfg
	c.partner = p.OtherPlayer
	c.penaltyRate = p.MissedAlarmPenalty
	// The owner's alarm starts with the bet; until then nothing is counted.
	c.activate(call, &Participant{Identity: call.Caller, Schedule: schedule.None(), Stake: call.Value})
	call.Effects.Deposit(c.Account(), c.id, call.Caller, call.Value)
	return nil
}

// SubmitConfirmation records a confirmation for the caller. One-shot kinds
// complete on their first accepted confirmation; alarms stay active.
func (c *Commitment) SubmitConfirmation(call *protocol.Call, proofURI string) error {
	if err := c.requireStatus(protocol.StatusActive); err != nil {
		return err
	}
	if err := c.requireStarted(); err != nil {
		return err
	}
	p, err := c.confirmer(call.Caller)
	if err != nil {
		return err
	}
	if c.template.Timelock {
		return c.confirmTimelockTask(call, p, proofURI)
	}

	if err := p.Schedule.RecordEntry(call.Now); err != nil {
		return err
	}
	c.recordProof(call, proofURI)
	if !c.template.Recurring() {
		c.transition(call, protocol.StatusComplete)
	}
	return nil
}

// confirmer resolves who may confirm: every participant of a partner bet,
// otherwise only the owner.
func (c *Commitment) confirmer(caller protocol.Identity) (*Participant, error) {
	if c.template.Partner {
		return c.participant(caller)
	}
	if caller != c.owner {
		return nil, protocol.Errorf(protocol.ErrOnlyOwnerAction, "%s is not the owner of commitment %d", caller, c.id)
	}
	return c.participants[0], nil
}

// confirmTimelockTask completes the task either way once the window has
// opened. In time, the stake is refunded. Late, the stake is locked until
// deadline + duration.
func (c *Commitment) confirmTimelockTask(call *protocol.Call, p *Participant, proofURI string) error {
	open, deadline, _ := p.Schedule.DeadlineWindow()
	if call.Now < open {
		return protocol.Errorf(protocol.ErrNotInSubmissionWindow, "window opens at %d", open)
	}

	if call.Now > deadline {
		c.recordProof(call, proofURI)
		c.transition(call, protocol.StatusComplete)
		err := c.timelock.Penalize(call, c, c.owner)
		if err != nil && !errors.Is(err, protocol.ErrNothingToPenalize) {
			return err
		}
		return nil
	}

	if err := p.Schedule.RecordEntry(call.Now); err != nil {
		return err
	}
	c.recordProof(call, proofURI)
	c.transition(call, protocol.StatusComplete)
	_, err := c.timelock.Withdraw(call, c)
	return err
}

func (c *Commitment) recordProof(call *protocol.Call, uri string) {
	c.proofs = append(c.proofs, Proof{Participant: call.Caller, URI: uri, At: call.Now})
	call.Effects.Emit(protocol.Event{
		Type:         protocol.EventConfirmationSubmitted,
		CommitmentID: c.id,
		Kind:         c.template.Kind,
		Actor:        call.Caller,
		ProofURI:     uri,
	})
}

// Cancel ends the commitment early and refunds any stake. Deadline kinds
// can only be cancelled before their window opens, partner bets only
// before they start.
func (c *Commitment) Cancel(call *protocol.Call) error {
	if c.status != protocol.StatusActive && c.status != protocol.StatusPaused {
		return protocol.Errorf(protocol.ErrNotActive, "commitment %d is %s", c.id, c.status)
	}
	if err := c.requireOwner(call); err != nil {
		return err
	}
	if open, _, ok := c.DeadlineWindow(); ok && call.Now >= open {
		return protocol.Errorf(protocol.ErrCantWithdrawInSubmissionWindow, "window opened at %d", open)
	}
	if c.template.Partner && c.started {
		return protocol.Errorf(protocol.ErrAlreadyStarted, "commitment %d has started", c.id)
	}

	c.transition(call, protocol.StatusCancelled)
	switch {
	case c.template.Timelock:
		_, err := c.timelock.Withdraw(call, c)
		return err
	case c.template.Partner:
		owner := c.participants[0]
		call.Effects.Release(c.Account(), c.id, owner.Identity, owner.Stake)
	}
	return nil
}

// Pause suspends a recurring commitment. Misses stop accruing.
func (c *Commitment) Pause(call *protocol.Call) error {
	if !c.template.Suspendable {
		return protocol.Errorf(protocol.ErrUnsupportedOperation, "%s cannot be paused", c.template.Kind)
	}
	if err := c.requireStatus(protocol.StatusActive); err != nil {
		return err
	}
	if err := c.requireOwner(call); err != nil {
		return err
	}
	c.transition(call, protocol.StatusPaused)
	return nil
}

// Resume reactivates a paused commitment. Misses up to the pause are
// carried; alarm counting restarts from now.
func (c *Commitment) Resume(call *protocol.Call) error {
	if !c.template.Suspendable {
		return protocol.Errorf(protocol.ErrUnsupportedOperation, "%s cannot be resumed", c.template.Kind)
	}
	if c.status != protocol.StatusPaused {
		return protocol.Errorf(protocol.ErrNotActive, "commitment %d is %s, not %s", c.id, c.status, protocol.StatusPaused)
	}
	if err := c.requireOwner(call); err != nil {
		return err
	}
	for _, p := range c.participants {
		p.Carried += p.Schedule.MissedDeadlines(c.pausedAt)
		p.Schedule.Rebase(call.Now)
	}
	c.transition(call, protocol.StatusActive)
	return nil
}
