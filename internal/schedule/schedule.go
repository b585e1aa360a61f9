package schedule

import (
	"github.com/pledgeworks/pledge/internal/protocol"
)

// Variant tags which schedule a Schedule holds.
type Variant string

const (
	VariantNone     Variant = "none"
	VariantDeadline Variant = "deadline"
	VariantAlarm    Variant = "alarm"
)

// Schedule is the tagged union of the schedule modules. Exactly the field
// matching Variant is set. VariantNone accepts every confirmation and
// never reports a miss.
type Schedule struct {
	Variant  Variant   `json:"variant"`
	Deadline *Deadline `json:"deadline,omitempty"`
	Alarm    *Alarm    `json:"alarm,omitempty"`
}

// None returns a schedule that never constrains confirmation.
func None() Schedule {
	return Schedule{Variant: VariantNone}
}

// FromDeadline wraps a deadline schedule.
func FromDeadline(d *Deadline) Schedule {
	return Schedule{Variant: VariantDeadline, Deadline: d}
}

// FromAlarm wraps an alarm schedule.
func FromAlarm(a *Alarm) Schedule {
	return Schedule{Variant: VariantAlarm, Alarm: a}
}

// Recurring reports whether confirmations keep the commitment active.
func (s Schedule) Recurring() bool {
	return s.Variant == VariantAlarm
}

// CanRecord reports whether RecordEntry would succeed at now.
func (s Schedule) CanRecord(now protocol.Timestamp) error {
	switch s.Variant {
	case VariantDeadline:
		return s.Deadline.CanRecord(now)
	case VariantAlarm:
		return s.Alarm.CanRecord(now)
	default:
		return nil
	}
}

// RecordEntry delegates to the held schedule.
func (s Schedule) RecordEntry(now protocol.Timestamp) error {
	switch s.Variant {
	case VariantDeadline:
		return s.Deadline.RecordEntry(now)
	case VariantAlarm:
		return s.Alarm.RecordEntry(now)
	default:
		return nil
	}
}

// MissedDeadlines delegates to the held schedule.
func (s Schedule) MissedDeadlines(now protocol.Timestamp) uint64 {
	switch s.Variant {
	case VariantDeadline:
		return s.Deadline.MissedDeadlines(now)
	case VariantAlarm:
		return s.Alarm.MissedDeadlines(now)
	default:
		return 0
	}
}

// TimeToNextDeadline delegates to the held schedule. A schedule-less
// commitment has no deadline.
func (s Schedule) TimeToNextDeadline(now protocol.Timestamp) (int64, error) {
	switch s.Variant {
	case VariantDeadline:
		return s.Deadline.TimeToNextDeadline(now), nil
	case VariantAlarm:
		return s.Alarm.TimeToNextDeadline(now), nil
	default:
		return 0, protocol.Errorf(protocol.ErrUnsupportedOperation, "commitment has no deadline")
	}
}

// DeadlineWindow returns the submission window of a deadline schedule.
// ok is false for every other variant.
func (s Schedule) DeadlineWindow() (open, deadline protocol.Timestamp, ok bool) {
	if s.Variant != VariantDeadline {
		return 0, 0, false
	}
	return s.Deadline.WindowOpen(), s.Deadline.Deadline, true
}

// EntryRecorded reports whether a one-shot schedule has its entry.
func (s Schedule) EntryRecorded() bool {
	return s.Variant == VariantDeadline && s.Deadline.EntrySubmitted
}

// Rebase restarts miss counting at now. Only alarms count over time.
func (s Schedule) Rebase(now protocol.Timestamp) {
	if s.Variant == VariantAlarm {
		s.Alarm.Rebase(now)
	}
}
