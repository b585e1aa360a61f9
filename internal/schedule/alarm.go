package schedule

import (
	"slices"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// Alarm configuration bounds.
const (
	MinAlarmWindow     int64 = 60
	MaxTimezoneOffset  int64 = 43200
	maxActiveDays            = 7
	firstWeekday             = 1
	lastWeekday              = 7
)

// AlarmConfig is the validated, immutable part of an alarm schedule.
type AlarmConfig struct {
	AlarmTime      int64 `json:"alarm_time"`
	Days           []int `json:"alarm_days"`
	Window         int64 `json:"submission_window"`
	TimezoneOffset int64 `json:"timezone_offset"`
}

// Validate checks the configuration bounds.
func (c AlarmConfig) Validate() error {
	if c.AlarmTime < 0 || c.AlarmTime >= SecondsPerDay {
		return protocol.Errorf(protocol.ErrInvalidAlarmTime, "alarm time %d not in [0, %d)", c.AlarmTime, SecondsPerDay)
	}
	if len(c.Days) == 0 || len(c.Days) > maxActiveDays {
		return protocol.Errorf(protocol.ErrInvalidDays, "need 1 to %d active days, got %d", maxActiveDays, len(c.Days))
	}
	for i, d := range c.Days {
		if d < firstWeekday || d > lastWeekday {
			return protocol.Errorf(protocol.ErrInvalidDays, "day %d not in [1, 7]", d)
		}
		if i > 0 && d <= c.Days[i-1] {
			return protocol.Errorf(protocol.ErrInvalidDays, "days must be strictly ascending: %v", c.Days)
		}
	}
	if c.Window < MinAlarmWindow || c.Window >= SecondsPerDay {
		return protocol.Errorf(protocol.ErrInvalidWindow, "submission window %d not in [%d, %d)", c.Window, MinAlarmWindow, SecondsPerDay)
	}
	if c.TimezoneOffset <= -MaxTimezoneOffset || c.TimezoneOffset >= MaxTimezoneOffset {
		return protocol.Errorf(protocol.ErrInvalidTimezone, "timezone offset %d not in (-%d, %d)", c.TimezoneOffset, MaxTimezoneOffset, MaxTimezoneOffset)
	}
	return nil
}

// Alarm is a recurring schedule: one confirmation per active local day, in
// the window before that day's alarm.
//
// LastEntryDay holds the local day index of the last credited occurrence,
// not its weekday, so an entry a week later on the same weekday is never
// mistaken for a duplicate.
type Alarm struct {
	AlarmConfig

	InitAt         protocol.Timestamp `json:"init_at"`
	LastEntryDay   *int64             `json:"last_entry_day,omitempty"`
	LastEntryAlarm protocol.Timestamp `json:"last_entry_alarm,omitempty"`

	// Entries counts every recorded entry. Credited counts entries since
	// InitAt, which moves on Rebase.
	Entries  uint64 `json:"entries"`
	Credited uint64 `json:"credited"`
}

// NewAlarm validates cfg and starts counting at now.
func NewAlarm(cfg AlarmConfig, now protocol.Timestamp) (*Alarm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Days = slices.Clone(cfg.Days)
	return &Alarm{AlarmConfig: cfg, InitAt: now}, nil
}

// LocalDayOfWeek returns the weekday of t in the alarm's timezone.
func (a *Alarm) LocalDayOfWeek(t protocol.Timestamp) int {
	return LocalDayOfWeek(t, a.TimezoneOffset)
}

// LocalTimeOfDay returns seconds since local midnight of t.
func (a *Alarm) LocalTimeOfDay(t protocol.Timestamp) int64 {
	return LocalTimeOfDay(t, a.TimezoneOffset)
}

// AlarmAt returns the instant the alarm of local day fires.
func (a *Alarm) AlarmAt(day int64) protocol.Timestamp {
	return day*SecondsPerDay + a.AlarmTime - a.TimezoneOffset
}

// IsActiveDay reports whether weekday is one of the alarm days.
func (a *Alarm) IsActiveDay(weekday int) bool {
	_, found := slices.BinarySearch(a.Days, weekday)
	return found
}

// occurrence finds the local day whose submission window contains now.
// Only today and tomorrow can qualify: yesterday's alarm always fired
// before today's local midnight, and a window shorter than a day cannot
// contain now for both.
func (a *Alarm) occurrence(now protocol.Timestamp) (int64, bool) {
	today := LocalDay(now, a.TimezoneOffset)
	for _, day := range []int64{today, today + 1} {
		at := a.AlarmAt(day)
		if now >= at-a.Window && now <= at {
			return day, true
		}
	}
	return 0, false
}

// CanRecord reports whether RecordEntry would succeed at now.
func (a *Alarm) CanRecord(now protocol.Timestamp) error {
	_, err := a.eligibleDay(now)
	return err
}

func (a *Alarm) eligibleDay(now protocol.Timestamp) (int64, error) {
	day, ok := a.occurrence(now)
	if !ok {
		return 0, protocol.Errorf(protocol.ErrNotInSubmissionWindow,
			"local time %d is not within %ds before alarm %d", a.LocalTimeOfDay(now), a.Window, a.AlarmTime)
	}
	if !a.IsActiveDay(WeekdayOfDay(day)) {
		return 0, protocol.Errorf(protocol.ErrNotInSubmissionWindow, "weekday %d is not an alarm day", WeekdayOfDay(day))
	}
	if a.LastEntryDay != nil && *a.LastEntryDay == day {
		return 0, protocol.Errorf(protocol.ErrAlreadySubmittedToday, "entry for local day %d already recorded", day)
	}
	return day, nil
}

// RecordEntry credits the occurrence whose window contains now.
func (a *Alarm) RecordEntry(now protocol.Timestamp) error {
	day, err := a.eligibleDay(now)
	if err != nil {
		return err
	}
	a.LastEntryDay = &day
	a.LastEntryAlarm = a.AlarmAt(day)
	a.Entries++
	a.Credited++
	return nil
}

// MissedDeadlines counts active occurrences with InitAt <= A(D) < now
// that have no entry.
func (a *Alarm) MissedDeadlines(now protocol.Timestamp) uint64 {
	lo := ceilDiv(a.InitAt-a.AlarmTime+a.TimezoneOffset, SecondsPerDay)
	hi := ceilDiv(now-a.AlarmTime+a.TimezoneOffset, SecondsPerDay) - 1
	closed := a.countActive(lo, hi)

	credited := a.Credited
	if credited > 0 && a.LastEntryAlarm >= now {
		// The latest entry belongs to an alarm that has not fired yet.
		credited--
	}
	if credited >= closed {
		return 0
	}
	return closed - credited
}

// countActive counts local days in [lo, hi] whose weekday is active.
func (a *Alarm) countActive(lo, hi int64) uint64 {
	if hi < lo {
		return 0
	}
	span := hi - lo + 1
	weeks := span / DaysPerWeek
	count := uint64(weeks) * uint64(len(a.Days))
	for day := lo; day < lo+span%DaysPerWeek; day++ {
		if a.IsActiveDay(WeekdayOfDay(day)) {
			count++
		}
	}
	return count
}

// TimeToNextDeadline returns seconds until the next alarm that has not yet
// fired. Today's alarm counts if today is active and it is still ahead.
func (a *Alarm) TimeToNextDeadline(now protocol.Timestamp) int64 {
	today := LocalDay(now, a.TimezoneOffset)
	weekday := WeekdayOfDay(today)
	if a.IsActiveDay(weekday) && a.AlarmAt(today) >= now {
		return a.AlarmAt(today) - now
	}
	next := a.NextAlarmDay(weekday)
	ahead := (int64(next-weekday) + DaysPerWeek) % DaysPerWeek
	if ahead == 0 {
		ahead = DaysPerWeek
	}
	return a.AlarmAt(today+ahead) - now
}

// NextAlarmDay returns the smallest active weekday strictly after today,
// wrapping to the first active day of the week.
func (a *Alarm) NextAlarmDay(today int) int {
	for _, d := range a.Days {
		if d > today {
			return d
		}
	}
	return a.Days[0]
}

// Rebase restarts miss counting at now. An entry already recorded for an
// alarm that has not fired yet stays credited.
func (a *Alarm) Rebase(now protocol.Timestamp) {
	a.InitAt = now
	a.Credited = 0
	if a.Entries > 0 && a.LastEntryAlarm >= now {
		a.Credited = 1
	}
}
