// Package alarm computes fire instants and bridges alarms to the host platform.
package alarm

import (
	"sort"
	"time"
)

// NextFire returns the earliest instant strictly after now at which hour and
// minute fall on one of weekdays (0=Sunday). Empty weekdays means today, or
// tomorrow when today's instant is not in the future.
func NextFire(hour, minute int, weekdays []int, now time.Time) time.Time {
	loc := now.Location()
	year, month, day := now.Date()
	today := time.Date(year, month, day, hour, minute, 0, 0, loc)

	if len(weekdays) == 0 {
		if !today.After(now) {
			return time.Date(year, month, day+1, hour, minute, 0, 0, loc)
		}
		return today
	}

	days := normalizeWeekdays(weekdays)
	current := int(now.Weekday())
	best := -1
	for _, wd := range days {
		offset := (wd - current + 7) % 7
		if offset == 0 && !today.After(now) {
			offset = 7
		}
		if best < 0 || offset < best {
			best = offset
		}
	}
	return time.Date(year, month, day+best, hour, minute, 0, 0, loc)
}

// normalizeWeekdays sorts and dedupes, folding values into 0..6.
func normalizeWeekdays(weekdays []int) []int {
	seen := make(map[int]struct{}, len(weekdays))
	out := make([]int, 0, len(weekdays))
	for _, wd := range weekdays {
		wd = ((wd % 7) + 7) % 7
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		out = append(out, wd)
	}
	sort.Ints(out)
	return out
}
