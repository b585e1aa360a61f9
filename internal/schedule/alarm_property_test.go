package schedule

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// daysFromMask turns a non-zero 7-bit mask into an ascending day list.
func daysFromMask(mask int) []int {
	days := make([]int, 0, 7)
	for d := 1; d <= 7; d++ {
		if mask&(1<<(d-1)) != 0 {
			days = append(days, d)
		}
	}
	return days
}

// TestAlarmProperty_MissedMatchesOracle checks the closed-form miss count
// against day-by-day simulation over random configurations and spans.
func TestAlarmProperty_MissedMatchesOracle(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("closed-form count equals simulation", prop.ForAll(
		func(alarmTime int64, mask int, tz int64, initAt int64, elapsed int64) bool {
			cfg := AlarmConfig{
				AlarmTime:      alarmTime,
				Days:           daysFromMask(mask),
				Window:         MinAlarmWindow,
				TimezoneOffset: tz,
			}
			a, err := NewAlarm(cfg, initAt)
			if err != nil {
				return false
			}
			now := initAt + elapsed
			return a.MissedDeadlines(now) == oracleMissed(cfg, initAt, now, nil)
		},
		gen.Int64Range(0, SecondsPerDay-1),
		gen.IntRange(1, 127),
		gen.Int64Range(-MaxTimezoneOffset+1, MaxTimezoneOffset-1),
		gen.Int64Range(1_600_000_000, 1_900_000_000),
		gen.Int64Range(0, 400*SecondsPerDay),
	))

	properties.Property("next deadline is never in the past and within a week", prop.ForAll(
		func(alarmTime int64, mask int, tz int64, now int64) bool {
			cfg := AlarmConfig{
				AlarmTime:      alarmTime,
				Days:           daysFromMask(mask),
				Window:         MinAlarmWindow,
				TimezoneOffset: tz,
			}
			a, err := NewAlarm(cfg, now)
			if err != nil {
				return false
			}
			ttl := a.TimeToNextDeadline(now)
			if ttl < 0 || ttl > DaysPerWeek*SecondsPerDay {
				return false
			}
			// The alarm it points at is on an active day.
			return a.IsActiveDay(LocalDayOfWeek(now+ttl, tz))
		},
		gen.Int64Range(0, SecondsPerDay-1),
		gen.IntRange(1, 127),
		gen.Int64Range(-MaxTimezoneOffset+1, MaxTimezoneOffset-1),
		gen.Int64Range(1_600_000_000, 1_900_000_000),
	))

	properties.TestingRun(t)
}
