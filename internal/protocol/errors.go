package protocol

import (
	"errors"
	"fmt"
)

// Category groups error codes by how a caller should react to them.
type Category string

const (
	// CategoryConfiguration errors are caught at init and never retried.
	CategoryConfiguration Category = "configuration"

	// CategoryTiming errors are expected; callers retry at the right time.
	CategoryTiming Category = "timing"

	// CategoryAuthorization errors are fatal to the call.
	CategoryAuthorization Category = "authorization"

	// CategoryLifecycle errors indicate caller or programmer misuse.
	CategoryLifecycle Category = "lifecycle"

	// CategoryFundSafety errors protect stake invariants and are never bypassable.
	CategoryFundSafety Category = "fund_safety"
)

// ErrorCode identifies a specific rejection.
type ErrorCode string

// Error is a protocol rejection. Every rejected operation aborts with no
// state change and returns exactly one Error.
//
// Errors compare by Code, so a detailed copy made with Errorf still
// matches its sentinel under errors.Is.
type Error struct {
	Code     ErrorCode
	Category Category
	Message  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a protocol error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(category Category, code ErrorCode, message string) *Error {
	return &Error{Code: code, Category: category, Message: message}
}

// Errorf returns a copy of base with a more specific message.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{
		Code:     base.Code,
		Category: base.Category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Configuration errors.
var (
	ErrInvalidAlarmTime    = newError(CategoryConfiguration, "INVALID_ALARM_TIME", "alarm time must be in [0, 86400)")
	ErrInvalidDays         = newError(CategoryConfiguration, "INVALID_DAYS", "days must be 1-7 entries in [1,7], strictly ascending")
	ErrInvalidWindow       = newError(CategoryConfiguration, "INVALID_WINDOW", "submission window out of range")
	ErrInvalidTimezone     = newError(CategoryConfiguration, "INVALID_TIMEZONE", "timezone offset must be in (-43200, 43200)")
	ErrDeadlinePassed      = newError(CategoryConfiguration, "DEADLINE_PASSED", "deadline must be in the future")
	ErrInvalidPayload      = newError(CategoryConfiguration, "INVALID_PAYLOAD", "init payload does not match the kind's schema")
	ErrInvalidLockDuration = newError(CategoryConfiguration, "INVALID_LOCK_DURATION", "lock duration must be positive")
)

// Timing errors.
var (
	ErrNotInSubmissionWindow = newError(CategoryTiming, "NOT_IN_SUBMISSION_WINDOW", "not in submission window")
	ErrAlreadySubmittedToday = newError(CategoryTiming, "ALREADY_SUBMITTED_TODAY", "already submitted for this alarm")
)

// Authorization errors.
var (
	ErrUnauthorized           = newError(CategoryAuthorization, "UNAUTHORIZED", "caller is not authorized")
	ErrOnlyOwnerAction        = newError(CategoryAuthorization, "ONLY_OWNER_ACTION", "only the commitment owner may do this")
	ErrIncompatibleCommitType = newError(CategoryAuthorization, "INCOMPATIBLE_COMMIT_TYPE", "commitment has no deadline schedule")
	ErrNotParticipant         = newError(CategoryAuthorization, "NOT_PARTICIPANT", "caller is not a participant")
)

// Lifecycle errors.
var (
	ErrAlreadyInitialized   = newError(CategoryLifecycle, "ALREADY_INITIALIZED", "commitment already initialized")
	ErrAlreadyRegistered    = newError(CategoryLifecycle, "ALREADY_REGISTERED", "kind already has a template")
	ErrKindNotRegistered    = newError(CategoryLifecycle, "KIND_NOT_REGISTERED", "kind has no template")
	ErrNotActive            = newError(CategoryLifecycle, "NOT_ACTIVE", "commitment is not active")
	ErrNotStarted           = newError(CategoryLifecycle, "NOT_STARTED", "commitment has not started")
	ErrAlreadyStarted       = newError(CategoryLifecycle, "ALREADY_STARTED", "commitment already started")
	ErrUnknownCommitment    = newError(CategoryLifecycle, "UNKNOWN_COMMITMENT", "no commitment with that id")
	ErrUnsupportedOperation = newError(CategoryLifecycle, "UNSUPPORTED_OPERATION", "operation not supported by this kind")
)

// ErrTypeNotRegistered is the hub's historical name for ErrKindNotRegistered.
var ErrTypeNotRegistered = ErrKindNotRegistered

// Fund-safety errors.
var (
	ErrFundsLocked                    = newError(CategoryFundSafety, "FUNDS_LOCKED", "stake is locked")
	ErrCantWithdrawInSubmissionWindow = newError(CategoryFundSafety, "CANT_WITHDRAW_IN_SUBMISSION_WINDOW", "cannot withdraw while the submission window is open")
	ErrNothingToPenalize              = newError(CategoryFundSafety, "NOTHING_TO_PENALIZE", "no unpenalized missed deadline")
	ErrStakeValueNotSent              = newError(CategoryFundSafety, "STAKE_VALUE_NOT_SENT", "stake value required")
	ErrStakeMismatch                  = newError(CategoryFundSafety, "STAKE_MISMATCH", "stake must match the counterparty's")
	ErrStakeNotAccepted               = newError(CategoryFundSafety, "STAKE_NOT_ACCEPTED", "this kind does not hold stake")
	ErrAlreadyJoined                  = newError(CategoryFundSafety, "ALREADY_JOINED", "participant already joined")
)

var allErrors = []*Error{
	ErrInvalidAlarmTime, ErrInvalidDays, ErrInvalidWindow, ErrInvalidTimezone,
	ErrDeadlinePassed, ErrInvalidPayload, ErrInvalidLockDuration,
	ErrNotInSubmissionWindow, ErrAlreadySubmittedToday,
	ErrUnauthorized, ErrOnlyOwnerAction, ErrIncompatibleCommitType, ErrNotParticipant,
	ErrAlreadyInitialized, ErrAlreadyRegistered, ErrKindNotRegistered, ErrNotActive,
	ErrNotStarted, ErrAlreadyStarted, ErrUnknownCommitment, ErrUnsupportedOperation,
	ErrFundsLocked, ErrCantWithdrawInSubmissionWindow, ErrNothingToPenalize,
	ErrStakeValueNotSent, ErrStakeMismatch, ErrStakeNotAccepted, ErrAlreadyJoined,
}

// LookupCode returns the sentinel for a code, used when decoding journals.
func LookupCode(code ErrorCode) (*Error, bool) {
	for _, e := range allErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

// CodeOf extracts the protocol error code from err.
// Returns "" if err is nil or not a protocol error.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// CategoryOf extracts the protocol error category from err.
func CategoryOf(err error) Category {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// IsProtocolError reports whether err is (or wraps) a protocol rejection.
func IsProtocolError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// IsTimingError reports whether err is a timing rejection the caller may
// retry later.
func IsTimingError(err error) bool {
	return CategoryOf(err) == CategoryTiming
}

// IsFundSafetyError reports whether err protects a stake invariant.
func IsFundSafetyError(err error) bool {
	return CategoryOf(err) == CategoryFundSafety
}
