package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/testutil"
)

// DefaultRegistrar is the registrar identity used when a scenario names none.
const DefaultRegistrar protocol.Identity = "registrar"

// Scenario is a scripted run against a fresh engine. Steps execute in
// order against a manual clock; assertions are checked on the final state.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Registrar is the identity allowed to register kinds.
	// Defaults to "registrar".
	Registrar protocol.Identity `yaml:"registrar,omitempty"`

	// StartAt is the clock's initial unix time. Defaults to
	// 2024-01-01T00:00:00Z, a Monday.
	StartAt protocol.Timestamp `yaml:"start_at,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step either submits an operation or moves the clock. Exactly one of
// Op, Advance and Set is given.
type Step struct {
	Op           protocol.OpName   `yaml:"op,omitempty"`
	Caller       protocol.Identity `yaml:"caller,omitempty"`
	CommitmentID uint64            `yaml:"commitment_id,omitempty"`
	Kind         protocol.Kind     `yaml:"kind,omitempty"`

	// Payload is the init payload. String values of the form "now",
	// "now+N" and "now-N" are replaced with the scenario clock's time.
	Payload map[string]any `yaml:"payload,omitempty"`

	Value        protocol.Amount   `yaml:"value,omitempty"`
	Module       string            `yaml:"module,omitempty"`
	Participant  protocol.Identity `yaml:"participant,omitempty"`
	ProofURI     string            `yaml:"proof_uri,omitempty"`
	LockDuration int64             `yaml:"lock_duration,omitempty"`

	// Advance moves the clock forward by this many seconds.
	Advance int64 `yaml:"advance,omitempty"`

	// Set moves the clock to this unix time.
	Set protocol.Timestamp `yaml:"set,omitempty"`

	// Expect checks the operation's outcome. Without it the operation
	// must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes an operation's expected outcome.
type Expect struct {
	// Error is the expected rejection code. Empty means success.
	Error protocol.ErrorCode `yaml:"error,omitempty"`

	// Amount is the expected amount paid out (exit, withdraw).
	Amount *protocol.Amount `yaml:"amount,omitempty"`

	// ID is the expected commitment id (create).
	ID *uint64 `yaml:"id,omitempty"`
}

// Assertion checks the final engine state.
type Assertion struct {
	// Type is one of status, missed, event_count, balance, next_id.
	Type string `yaml:"type"`

	// CommitmentID selects the commitment for status and missed, and
	// filters event_count when set.
	CommitmentID *uint64 `yaml:"commitment_id,omitempty"`

	// Participant selects whose misses to count. Defaults to the owner.
	Participant protocol.Identity `yaml:"participant,omitempty"`

	// Event filters event_count by event type.
	Event protocol.EventType `yaml:"event,omitempty"`

	// Account selects an escrow balance, e.g. "commitment/0".
	Account string `yaml:"account,omitempty"`

	// Paid selects the total paid out to an identity.
	Paid protocol.Identity `yaml:"paid,omitempty"`

	// Expect is the expected value: a status name or a number.
	Expect any `yaml:"expect"`
}

// Assertion types.
const (
	AssertStatus     = "status"
	AssertMissed     = "missed"
	AssertEventCount = "event_count"
	AssertBalance    = "balance"
	AssertNextID     = "next_id"
)

var knownOps = map[protocol.OpName]bool{
	protocol.OpRegisterKind: true,
	protocol.OpCreate:       true,
	protocol.OpInit:         true,
	protocol.OpConfirm:      true,
	protocol.OpCancel:       true,
	protocol.OpPause:        true,
	protocol.OpResume:       true,
	protocol.OpStart:        true,
	protocol.OpExit:         true,
	protocol.OpJoin:         true,
	protocol.OpPenalize:     true,
	protocol.OpWithdraw:     true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as load errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios lists the .yaml and .yml files under dir in path order.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func (s *Scenario) registrar() protocol.Identity {
	if s.Registrar == "" {
		return DefaultRegistrar
	}
	return s.Registrar
}

func (s *Scenario) startAt() protocol.Timestamp {
	if s.StartAt == 0 {
		return testutil.Monday
	}
	return s.StartAt
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.StartAt < 0 {
		return fmt.Errorf("start_at must not be negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	if step.Op != "" {
		set++
	}
	if step.Advance != 0 {
		set++
	}
	if step.Set != 0 {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of op, advance or set is required")
	}

	if step.Op == "" {
		if step.Advance < 0 {
			return fmt.Errorf("advance must be positive, use set to move the clock back")
		}
		if step.Expect != nil {
			return fmt.Errorf("expect is only valid on op steps")
		}
		return nil
	}

	if !knownOps[step.Op] {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Caller == "" {
		return fmt.Errorf("op %s requires caller", step.Op)
	}
	if step.Expect != nil && step.Expect.Error != "" {
		if _, ok := protocol.LookupCode(step.Expect.Error); !ok {
			return fmt.Errorf("unknown error code %q", step.Expect.Error)
		}
	}
	return nil
}

// validateAssertion checks each assertion type has its required fields.
func validateAssertion(a Assertion) error {
	if a.Expect == nil {
		return fmt.Errorf("%s assertion requires expect", a.Type)
	}

	switch a.Type {
	case AssertStatus, AssertMissed:
		if a.CommitmentID == nil {
			return fmt.Errorf("%s assertion requires commitment_id", a.Type)
		}
	case AssertBalance:
		if (a.Account == "") == (a.Paid == "") {
			return fmt.Errorf("balance assertion requires exactly one of account or paid")
		}
	case AssertEventCount, AssertNextID:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
