package harness

import (
	"fmt"
	"strings"

	"github.com/pledgeworks/pledge/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It carries the trace so a failure can be read without rerunning.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s commitment=%d actor=%s", ev.Seq, ev.Type, ev.CommitmentID, ev.Actor)
		if ev.To != "" {
			fmt.Fprintf(&buf, " %s->%s", ev.From, ev.To)
		}
		if ev.Amount != 0 {
			fmt.Fprintf(&buf, " amount=%d", ev.Amount)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the engine's final
// state and returns one message per failure.
func EvaluateAssertions(eng *engine.Engine, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(eng, result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluate(eng *engine.Engine, result *Result, a Assertion) error {
	var (
		actual any
		err    error
	)

	switch a.Type {
	case AssertStatus:
		actual, err = eng.Status(*a.CommitmentID)
	case AssertMissed:
		actual, err = eng.MissedDeadlines(*a.CommitmentID, a.Participant)
	case AssertEventCount:
		actual = countEvents(result.Trace, a)
	case AssertBalance:
		balances := eng.Balances()
		if a.Account != "" {
			actual = balances.Escrow[a.Account]
		} else {
			actual = balances.Paid[a.Paid]
		}
	case AssertNextID:
		actual = eng.NextID()
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	want := fmt.Sprint(a.Expect)
	if err != nil {
		return &AssertionError{
			Type:     describeAssertion(a),
			Expected: want,
			Actual:   fmt.Sprintf("error: %v", err),
			Trace:    result.Trace,
		}
	}
	if got := fmt.Sprint(actual); got != want {
		return &AssertionError{
			Type:     describeAssertion(a),
			Expected: want,
			Actual:   got,
			Trace:    result.Trace,
		}
	}
	return nil
}

func countEvents(trace []TraceEvent, a Assertion) int {
	n := 0
	for _, ev := range trace {
		if a.Event != "" && ev.Type != a.Event {
			continue
		}
		if a.CommitmentID != nil && ev.CommitmentID != *a.CommitmentID {
			continue
		}
		n++
	}
	return n
}

func describeAssertion(a Assertion) string {
	var parts []string
	if a.CommitmentID != nil {
		parts = append(parts, fmt.Sprintf("commitment=%d", *a.CommitmentID))
	}
	if a.Participant != "" {
		parts = append(parts, "participant="+string(a.Participant))
	}
	if a.Event != "" {
		parts = append(parts, "event="+string(a.Event))
	}
	if a.Account != "" {
		parts = append(parts, "account="+a.Account)
	}
	if a.Paid != "" {
		parts = append(parts, "paid="+string(a.Paid))
	}
	if len(parts) == 0 {
		return a.Type
	}
	return a.Type + " (" + strings.Join(parts, " ") + ")"
}
