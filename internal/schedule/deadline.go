package schedule

import (
	"github.com/pledgeworks/pledge/internal/protocol"
)

// Deadline is a one-shot schedule. A confirmation is accepted once, inside
// [Deadline-Window, Deadline].
type Deadline struct {
	Deadline       protocol.Timestamp `json:"deadline"`
	Window         int64              `json:"submission_window"`
	EntrySubmitted bool               `json:"entry_submitted"`
	EntryAt        protocol.Timestamp `json:"entry_at,omitempty"`
}

// NewDeadline validates and creates a deadline schedule at time now.
func NewDeadline(deadline protocol.Timestamp, window int64, now protocol.Timestamp) (*Deadline, error) {
	if deadline <= now {
		return nil, protocol.Errorf(protocol.ErrDeadlinePassed, "deadline %d is not after %d", deadline, now)
	}
	if window < 0 {
		return nil, protocol.Errorf(protocol.ErrInvalidWindow, "submission window %d is negative", window)
	}
	return &Deadline{Deadline: deadline, Window: window}, nil
}

// WindowOpen returns the first instant a confirmation is accepted.
func (d *Deadline) WindowOpen() protocol.Timestamp {
	return d.Deadline - d.Window
}

// InWindow reports whether now falls inside the submission window.
func (d *Deadline) InWindow(now protocol.Timestamp) bool {
	return now >= d.WindowOpen() && now <= d.Deadline
}

// CanRecord reports whether RecordEntry would succeed at now.
func (d *Deadline) CanRecord(now protocol.Timestamp) error {
	if d.EntrySubmitted {
		return protocol.Errorf(protocol.ErrNotInSubmissionWindow, "entry already recorded at %d", d.EntryAt)
	}
	if !d.InWindow(now) {
		return protocol.Errorf(protocol.ErrNotInSubmissionWindow, "window is [%d, %d], now %d", d.WindowOpen(), d.Deadline, now)
	}
	return nil
}

// RecordEntry marks the single entry.
func (d *Deadline) RecordEntry(now protocol.Timestamp) error {
	if err := d.CanRecord(now); err != nil {
		return err
	}
	d.EntrySubmitted = true
	d.EntryAt = now
	return nil
}

// MissedDeadlines is 1 once the deadline passed without an entry, else 0.
func (d *Deadline) MissedDeadlines(now protocol.Timestamp) uint64 {
	if d.EntrySubmitted || now <= d.Deadline {
		return 0
	}
	return 1
}

// TimeToNextDeadline returns the signed number of seconds until the deadline.
func (d *Deadline) TimeToNextDeadline(now protocol.Timestamp) int64 {
	return d.Deadline - now
}
