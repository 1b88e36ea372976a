package alarm

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var clockLayouts = []string{
	"15:04",
	"3:04pm",
	"3:04 pm",
	"3pm",
	"3 pm",
	"1504",
}

// weekdayAliases is indexed by weekday, 0=Sunday.
var weekdayAliases = [7][]string{
	{"sun", "sunday"},
	{"mon", "monday"},
	{"tue", "tues", "tuesday"},
	{"wed", "wednesday"},
	{"thu", "thur", "thurs", "thursday"},
	{"fri", "friday"},
	{"sat", "saturday"},
}

func lookupWeekday(name string) (int, bool) {
	for wd, aliases := range weekdayAliases {
		for _, alias := range aliases {
			if alias == name {
				return wd, true
			}
		}
	}
	return 0, false
}

// ParseClock parses a wall-clock time such as "06:45", "6:45am", or
// "quarter past 6 in the morning".
func ParseClock(text string) (hour int, minute int, err error) {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return 0, 0, fmt.Errorf("time is empty")
	}

	for _, layout := range clockLayouts {
		if t, parseErr := time.Parse(layout, trimmed); parseErr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}

	parser := when.New(nil)
	parser.Add(en.All...)
	parser.Add(common.All...)

	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.Local)
	result, parseErr := parser.Parse(trimmed, base)
	if parseErr != nil {
		return 0, 0, fmt.Errorf("parse time %q: %w", text, parseErr)
	}
	if result == nil {
		return 0, 0, fmt.Errorf("parse time %q: unrecognized", text)
	}
	return result.Time.Hour(), result.Time.Minute(), nil
}

// ParseWeekdays parses a comma-separated day list. "daily" and "weekdays"
// are accepted shortcuts.
func ParseWeekdays(text string) ([]int, error) {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	switch trimmed {
	case "":
		return nil, nil
	case "daily", "everyday":
		return []int{0, 1, 2, 3, 4, 5, 6}, nil
	case "weekdays":
		return []int{1, 2, 3, 4, 5}, nil
	case "weekends":
		return []int{0, 6}, nil
	}

	var days []int
	for _, part := range strings.Split(trimmed, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		wd, ok := lookupWeekday(name)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		days = append(days, wd)
	}
	return normalizeWeekdays(days), nil
}

// FormatWeekdays renders weekdays with short names, or "once".
func FormatWeekdays(weekdays []int) string {
	if len(weekdays) == 0 {
		return "once"
	}
	out := make([]string, 0, len(weekdays))
	for _, wd := range normalizeWeekdays(weekdays) {
		out = append(out, weekdayAliases[wd][0])
	}
	return strings.Join(out, ",")
}
