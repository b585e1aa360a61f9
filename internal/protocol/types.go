package protocol

import "fmt"

// Timestamp is a point in time in unix seconds.
type Timestamp = int64

// Amount is a quantity of stake. The unit is opaque to the protocol.
type Amount uint64

// Identity names a caller: a commitment owner, a partner, the registrar.
type Identity string

// Kind identifies which template and payload schema apply to a commitment.
type Kind string

// Built-in commitment kinds.
const (
	KindBase                    Kind = "BaseCommitment"
	KindDeadline                Kind = "DeadlineCommitment"
	KindAlarm                   Kind = "AlarmCommitment"
	KindTimelockingDeadlineTask Kind = "TimelockingDeadlineTask"
	KindPartnerAlarmClock       Kind = "PartnerAlarmClock"
)

// Kinds lists the built-in kinds in registration order.
var Kinds = []Kind{
	KindBase,
	KindDeadline,
	KindAlarm,
	KindTimelockingDeadlineTask,
	KindPartnerAlarmClock,
}

// ParseKind validates a kind name against the built-in kinds.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown commitment kind %q", s)
}

// Status is the lifecycle state of a commitment.
type Status string

const (
	StatusInactive  Status = "INACTIVE"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusComplete  Status = "COMPLETE"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusCancelled
}

// Call carries the context of one serialized operation into the domain
// layer: who is calling, the operation's time, the value sent along, and
// the effects buffer the operation writes into.
type Call struct {
	Caller  Identity
	Now     Timestamp
	Value   Amount
	Effects *Effects
}

// NewCall creates a call with an empty effects buffer.
func NewCall(caller Identity, now Timestamp, value Amount) *Call {
	return &Call{
		Caller:  caller,
		Now:     now,
		Value:   value,
		Effects: &Effects{},
	}
}
