package session

import (
	"time"

	"github.com/rbright/wakeproof/internal/model"
)

const dateLayout = "2006-01-02"

// UpdateStreak records a completion on now's local calendar day. A second
// completion on the same day changes nothing.
func UpdateStreak(s model.Streak, now time.Time) (model.Streak, bool) {
	today := now.Format(dateLayout)
	if s.LastCompletionDate == today {
		return s, false
	}

	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
	if s.LastCompletionDate == yesterday {
		s.Current++
	} else {
		s.Current = 1
	}
	s.Best = max(s.Best, s.Current)
	s.LastCompletionDate = today
	return s, true
}
