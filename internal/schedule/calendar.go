package schedule

// SecondsPerDay is the length of a calendar day. Offsets are fixed, so
// every local day is exactly this long.
const SecondsPerDay int64 = 86400

// DaysPerWeek is the length of the weekday cycle.
const DaysPerWeek int64 = 7

// weekdayAnchor shifts local day 0 (a Thursday) to weekday 4, making
// Monday weekday 1.
const weekdayAnchor int64 = 3

// floorDiv divides rounding toward negative infinity. b must be positive.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

// ceilDiv divides rounding toward positive infinity. b must be positive.
func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}

// floorMod is the non-negative remainder of a divided by b. b must be positive.
func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

// WeekdayOfDay returns the weekday (1..7, Monday = 1) of a local day index.
func WeekdayOfDay(day int64) int {
	return int(floorMod(day+weekdayAnchor, DaysPerWeek)) + 1
}

// LocalDay returns the local day index of t under a fixed offset.
func LocalDay(t, tzOffset int64) int64 {
	return floorDiv(t+tzOffset, SecondsPerDay)
}

// LocalTimeOfDay returns seconds since local midnight of t.
func LocalTimeOfDay(t, tzOffset int64) int64 {
	return floorMod(t+tzOffset, SecondsPerDay)
}

// LocalDayOfWeek returns the local weekday (1..7) of t.
func LocalDayOfWeek(t, tzOffset int64) int {
	return WeekdayOfDay(LocalDay(t, tzOffset))
}
