// Package schedule implements the schedule modules that decide, from the
// current time alone, whether a confirmation is acceptable now, how many
// deadlines were missed, and when the next deadline is.
//
// # Variants
//
// Deadline is one-shot: a single deadline with a submission window
// [deadline-window, deadline]. Its miss count is binary.
//
// Alarm is recurring: a local time of day, a set of active weekdays, a
// window before each alarm, and a fixed timezone offset. Its miss count
// grows with every active day whose alarm passed without an entry.
//
// Schedule is the tagged union of the two, dispatched with an explicit
// switch by the owning commitment.
//
// # Calendar arithmetic
//
// All arithmetic is on unix seconds with a fixed offset; there is no
// daylight saving. For a timestamp t:
//
//	localDay(t)       = floor((t + tz) / 86400)
//	localDayOfWeek(t) = (localDay(t) + 3) mod 7 + 1
//
// The +3 anchor makes day 1 Monday: local day 0 (1970-01-01) is a
// Thursday, weekday 4. The alarm of local day D fires at
//
//	A(D) = D*86400 + alarmTime - tz
//
// An occurrence counts toward the miss total iff initAt <= A(D) < now and
// no entry was recorded for it. Counting is closed-form (full weeks times
// the number of active days, plus fewer than seven boundary days) so
// arbitrarily long spans cost the same as short ones.
package schedule
