// Package engine implements scoped rule resolution: fetching candidates
// through the cache, gating them by scope, effective window and conditions,
// and ordering survivors deterministically.
package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
)

// InEffect reports whether every temporal gate of the conditions holds at
// now. Both effective bounds are inclusive.
func InEffect(c *domain.Conditions, now time.Time) bool {
	_, unmatched := temporalChecks(c, now)
	return len(unmatched) == 0
}

// temporalChecks evaluates each temporal restriction present on the
// conditions and buckets it as matched or unmatched. Restrictions that are
// absent impose nothing and appear in neither list.
func temporalChecks(c *domain.Conditions, now time.Time) (matched, unmatched []string) {
	if !c.EffectiveFrom.IsZero() || c.EffectiveTo != nil {
		if effectiveAt(c, now) {
			matched = append(matched, "effective_window")
		} else {
			unmatched = append(unmatched, "effective_window")
		}
	}

	if len(c.DaysOfWeek) > 0 {
		if dayMatches(c.DaysOfWeek, now) {
			matched = append(matched, "days_of_week")
		} else {
			unmatched = append(unmatched, "days_of_week")
		}
	}

	if len(c.TimeWindows) > 0 {
		if anyWindowMatches(c.TimeWindows, now) {
			matched = append(matched, "time_windows")
		} else {
			unmatched = append(unmatched, "time_windows")
		}
	}

	return matched, unmatched
}

func effectiveAt(c *domain.Conditions, now time.Time) bool {
	if !c.EffectiveFrom.IsZero() && now.Before(c.EffectiveFrom) {
		return false
	}
	if c.EffectiveTo != nil && now.After(*c.EffectiveTo) {
		return false
	}
	return true
}

// dayMatches uses 0=Sunday through 6=Saturday, matching time.Weekday.
func dayMatches(days []int, now time.Time) bool {
	wd := int(now.Weekday())
	for _, d := range days {
		if d == wd {
			return true
		}
	}
	return false
}

func anyWindowMatches(windows []domain.TimeWindow, now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	for _, w := range windows {
		if windowContains(w, minute) {
			return true
		}
	}
	return false
}

// windowContains treats Start > End as a window that wraps past midnight,
// e.g. 22:00-02:00 contains 23:30 and 01:00 but not 12:00. Malformed windows
// never match.
func windowContains(w domain.TimeWindow, minute int) bool {
	start, ok := parseHHMM(w.Start)
	if !ok {
		return false
	}
	end, ok := parseHHMM(w.End)
	if !ok {
		return false
	}

	if start <= end {
		return minute >= start && minute <= end
	}
	return minute >= start || minute <= end
}

func parseHHMM(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
