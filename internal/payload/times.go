package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pledgeworks/pledge/internal/protocol"
)

var relativeTime = regexp.MustCompile(`^now(?:([+-])(\d+)([smhd]?))?$`)

// ResolveTimes replaces relative time strings anywhere in v with absolute
// unix seconds: "now", "now+N" and "now-N", where N is seconds or a
// number with an s/m/h/d suffix. Other values, including strings that
// merely start with "now", pass through unchanged. Maps and slices are
// copied, never mutated.
func ResolveTimes(v any, now protocol.Timestamp) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := ResolveTimes(elem, now)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := ResolveTimes(elem, now)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	case string:
		if !relativeTime.MatchString(strings.TrimSpace(val)) {
			return val, nil
		}
		t, err := ParseRelative(val, now)
		if err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatInt(t, 10)), nil
	}
	return v, nil
}

// ParseRelative parses "now", "now+N" or "now-N" against now.
func ParseRelative(s string, now protocol.Timestamp) (protocol.Timestamp, error) {
	m := relativeTime.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("relative time %q: want now, now+N or now-N", s)
	}
	if m[1] == "" {
		return now, nil
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("relative time %q: %w", s, err)
	}
	offset := n * unitSeconds[m[3]]
	if m[1] == "-" {
		offset = -offset
	}
	return now + offset, nil
}

var unitSeconds = map[string]int64{"": 1, "s": 1, "m": 60, "h": 3600, "d": 86400}
