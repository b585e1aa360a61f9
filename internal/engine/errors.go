package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an engine-level failure, as opposed to a protocol
// rejection. Protocol rejections are journaled outcomes; runtime errors
// mean the engine can no longer vouch for its state.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the operation being executed, when there is one.
	Seq int64

	// Details contains additional context.
	Details map[string]string

	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeHalted is returned for every operation after the engine halted.
	ErrCodeHalted RuntimeErrorCode = "HALTED"

	// ErrCodeJournalFailed means an operation could not be made durable.
	ErrCodeJournalFailed RuntimeErrorCode = "JOURNAL_FAILED"

	// ErrCodeReplayMismatch means re-execution diverged from the journal.
	ErrCodeReplayMismatch RuntimeErrorCode = "REPLAY_MISMATCH"

	// ErrCodeLedgerViolation means an operation produced movements the
	// vault refused.
	ErrCodeLedgerViolation RuntimeErrorCode = "LEDGER_VIOLATION"

	// ErrCodeInternal means a domain method failed with an error outside
	// the protocol error set.
	ErrCodeInternal RuntimeErrorCode = "INTERNAL"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Seq > 0 {
		msg = fmt.Sprintf("%s (seq=%d)", msg, e.Seq)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsHalted reports whether err came from a halted engine.
func IsHalted(err error) bool {
	return hasCode(err, ErrCodeHalted)
}

// IsJournalError reports whether err is a journal write failure.
func IsJournalError(err error) bool {
	return hasCode(err, ErrCodeJournalFailed)
}

// IsReplayMismatch reports whether err is a replay divergence.
func IsReplayMismatch(err error) bool {
	return hasCode(err, ErrCodeReplayMismatch)
}

// IsRuntimeError reports whether err is any engine runtime error.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// NewReplayMismatch describes a divergence at seq.
func NewReplayMismatch(seq int64, field, want, got string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReplayMismatch,
		Message: fmt.Sprintf("%s diverged: journal has %q, replay produced %q", field, want, got),
		Seq:     seq,
		Details: map[string]string{
			"field": field,
			"want":  want,
			"got":   got,
		},
	}
}

func newHaltedError(cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeHalted,
		Message: "engine halted after an earlier failure",
		Err:     cause,
	}
}
