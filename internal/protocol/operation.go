package protocol

import "encoding/json"

// OpName names a state-mutating operation.
type OpName string

const (
	OpRegisterKind OpName = "register_kind"
	OpCreate       OpName = "create"
	OpInit         OpName = "init"
	OpConfirm      OpName = "confirm"
	OpCancel       OpName = "cancel"
	OpPause        OpName = "pause"
	OpResume       OpName = "resume"
	OpStart        OpName = "start"
	OpExit         OpName = "exit"
	OpJoin         OpName = "join"
	OpPenalize     OpName = "penalize"
	OpWithdraw     OpName = "withdraw"
)

// Escrow modules. ModuleTimelock selects the standalone timelock module
// for join, penalize and withdraw; an empty Operation.Module selects the
// commitment itself (its embedded timelock, where it has one).
const (
	ModuleCommitment = "commitment"
	ModuleTimelock   = "timelock"
)

// Operation is one request to the serializer. Only the fields an op needs
// are set; the rest stay zero.
type Operation struct {
	ID           string          `json:"id"`
	Op           OpName          `json:"op"`
	Caller       Identity        `json:"caller"`
	CommitmentID uint64          `json:"commitment_id,omitempty"`
	Kind         Kind            `json:"kind,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Value        Amount          `json:"value,omitempty"`
	Module       string          `json:"module,omitempty"`
	Participant  Identity        `json:"participant,omitempty"`
	ProofURI     string          `json:"proof_uri,omitempty"`
	LockDuration int64           `json:"lock_duration,omitempty"`

	// At pins the operation's time. Zero means "now" from the engine's
	// time source. Replay always pins it.
	At Timestamp `json:"at,omitempty"`
}

// OperationRecord is the journaled form of an executed operation: the
// request, the time and sequence it ran at, its outcome code ("" for
// success), and the events it committed.
type OperationRecord struct {
	Seq       int64     `json:"seq"`
	Operation Operation `json:"operation"`
	At        Timestamp `json:"at"`
	Outcome   ErrorCode `json:"outcome,omitempty"`
	Events    []Event   `json:"events"`
}

// Succeeded reports whether the operation committed.
func (r OperationRecord) Succeeded() bool {
	return r.Outcome == ""
}
