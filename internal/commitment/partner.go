package commitment

import (
	"math"
	"math/bits"

	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/schedule"
)

// Start is the second player joining a partner bet with an equal stake.
// Both alarms begin counting from the start time.
func (c *Commitment) Start(call *protocol.Call) error {
	if !c.template.Partner {
		return protocol.Errorf(protocol.ErrUnsupportedOperation, "%s has no second player", c.template.Kind)
	}
	if err := c.requireStatus(protocol.StatusActive); err != nil {
		return err
	}
	if c.started {
		return protocol.Errorf(protocol.ErrAlreadyStarted, "commitment %d has started", c.id)
	}
	if call.Caller != c.partner {
		return protocol.Errorf(protocol.ErrNotParticipant, "%s is not the named other player", call.Caller)
	}
	if call.Value == 0 {
		return protocol.ErrStakeValueNotSent
	}
	owner := c.participants[0]
	if call.Value != owner.Stake {
		return protocol.Errorf(protocol.ErrStakeMismatch, "sent %d, owner staked %d", call.Value, owner.Stake)
	}
	if owner.Stake > math.MaxUint64-call.Value {
		return protocol.Errorf(protocol.ErrStakeMismatch, "pot of %d + %d overflows", owner.Stake, call.Value)
	}

	ownerAlarm, err := schedule.NewAlarm(c.alarmConfig, call.Now)
	if err != nil {
		return err
	}
	partnerAlarm, err := schedule.NewAlarm(c.alarmConfig, call.Now)
	if err != nil {
		return err
	}

	owner.Schedule = schedule.FromAlarm(ownerAlarm)
	c.participants = append(c.participants, &Participant{
		Identity: call.Caller,
		Schedule: schedule.FromAlarm(partnerAlarm),
		Stake:    call.Value,
	})
	c.started = true

	call.Effects.Emit(protocol.Event{
		Type:         protocol.EventUserJoined,
		CommitmentID: c.id,
		Kind:         c.template.Kind,
		Actor:        call.Caller,
		Handle:       c.handle,
	})
	call.Effects.Deposit(c.Account(), c.id, call.Caller, call.Value)
	return nil
}

// settlement splits the pot between owner and partner. Each miss moves
// the penalty from the player who missed to the other, up to the loser's
// whole stake.
func (c *Commitment) settlement(now protocol.Timestamp) (ownerShare, partnerShare protocol.Amount) {
	owner, partner := c.participants[0], c.participants[1]
	mine, theirs := c.missed(owner, now), c.missed(partner, now)
	switch {
	case mine < theirs:
		t := c.transfer(theirs-mine, partner.Stake)
		return owner.Stake + t, partner.Stake - t
	case mine > theirs:
		t := c.transfer(mine-theirs, owner.Stake)
		return owner.Stake - t, partner.Stake + t
	}
	return owner.Stake, partner.Stake
}

// transfer is penaltyRate*diff capped at the loser's stake. The product
// saturates instead of wrapping.
func (c *Commitment) transfer(diff uint64, loserStake protocol.Amount) protocol.Amount {
	hi, lo := bits.Mul64(uint64(c.penaltyRate), diff)
	if hi != 0 || lo > uint64(loserStake) {
		return loserStake
	}
	return protocol.Amount(lo)
}

// standing is what p has won (positive) or lost (negative) against other,
// saturating at the int64 range.
func (c *Commitment) standing(p, other *Participant, now protocol.Timestamp) int64 {
	mine, theirs := c.missed(p, now), c.missed(other, now)
	switch {
	case mine < theirs:
		return clampInt64(c.transfer(theirs-mine, other.Stake))
	case mine > theirs:
		return -clampInt64(c.transfer(mine-theirs, p.Stake))
	}
	return 0
}

func clampInt64(a protocol.Amount) int64 {
	if a > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(a)
}

// BetStanding returns the participant's current net position in the bet.
func (c *Commitment) BetStanding(who protocol.Identity, now protocol.Timestamp) (int64, error) {
	if !c.template.Partner {
		return 0, protocol.Errorf(protocol.ErrUnsupportedOperation, "%s is not a bet", c.template.Kind)
	}
	if err := c.requireStarted(); err != nil {
		return 0, err
	}
	p, err := c.participant(who)
	if err != nil {
		return 0, err
	}
	other := c.participants[0]
	if p == other {
		other = c.participants[1]
	}
	return c.standing(p, other, now), nil
}

// Exit settles the bet and completes it. Either player may exit. For a
// timelock task, exit is the owner withdrawing.
func (c *Commitment) Exit(call *protocol.Call) error {
	if c.template.Timelock {
		_, err := c.Withdraw(call)
		return err
	}
	if !c.template.Partner {
		return protocol.Errorf(protocol.ErrUnsupportedOperation, "%s has nothing to exit", c.template.Kind)
	}
	if err := c.requireStatus(protocol.StatusActive); err != nil {
		return err
	}
	if err := c.requireStarted(); err != nil {
		return err
	}
	if _, err := c.participant(call.Caller); err != nil {
		return err
	}

	ownerShare, partnerShare := c.settlement(call.Now)
	c.transition(call, protocol.StatusComplete)
	call.Effects.Release(c.Account(), c.id, c.participants[0].Identity, ownerShare)
	call.Effects.Release(c.Account(), c.id, c.participants[1].Identity, partnerShare)
	return nil
}
