package commitment

import (
	"github.com/pledgeworks/pledge/internal/protocol"
)

func (c *Commitment) requireTimelock() error {
	if c.timelock == nil {
		return protocol.Errorf(protocol.ErrIncompatibleCommitType, "%s holds no timelocked stake", c.template.Kind)
	}
	return nil
}

// Withdraw returns the caller's timelocked stake when the timelock allows.
func (c *Commitment) Withdraw(call *protocol.Call) (protocol.Amount, error) {
	if err := c.requireTimelock(); err != nil {
		return 0, err
	}
	if !c.initialized {
		return 0, protocol.Errorf(protocol.ErrNotActive, "commitment %d is %s", c.id, c.status)
	}
	return c.timelock.Withdraw(call, c)
}

// Penalize locks a participant's stake for an unaccounted miss. An empty
// participant means the owner.
func (c *Commitment) Penalize(call *protocol.Call, who protocol.Identity) error {
	if err := c.requireTimelock(); err != nil {
		return err
	}
	if who == "" {
		who = c.owner
	}
	return c.timelock.Penalize(call, c, who)
}

// UnlockTime reports when the participant's timelocked stake unlocks.
func (c *Commitment) UnlockTime(who protocol.Identity) (protocol.Timestamp, bool, error) {
	if err := c.requireTimelock(); err != nil {
		return 0, false, err
	}
	if who == "" {
		who = c.owner
	}
	return c.timelock.UnlockTime(c.id, who)
}

// PenaltyPending reports whether a penalize call would lock stake now.
func (c *Commitment) PenaltyPending(now protocol.Timestamp) bool {
	if c.timelock == nil {
		return false
	}
	return c.timelock.Pending(c, c.owner, now)
}
