// Package model holds the persisted alarm, delivery, and run records.
package model

import "time"

// Alarm is a user-configured wake alarm.
type Alarm struct {
	ID    string `json:"id" toml:"id" yaml:"id"`
	Label string `json:"label" toml:"label" yaml:"label"`
	// Hour and Minute are the local fire time.
	Hour   int `json:"hour" toml:"hour" yaml:"hour"`
	Minute int `json:"minute" toml:"minute" yaml:"minute"`
	// Weekdays uses 0=Sunday..6=Saturday. Empty means one-shot.
	Weekdays            []int `json:"weekdays,omitempty" toml:"weekdays" yaml:"weekdays,omitempty"`
	MaxSnoozes          int   `json:"max_snoozes" toml:"max_snoozes" yaml:"max_snoozes"`
	SnoozeMinutes       int   `json:"snooze_minutes" toml:"snooze_minutes" yaml:"snooze_minutes"`
	RequireAffirmations bool  `json:"require_affirmations" toml:"require_affirmations" yaml:"require_affirmations"`
	RequireGoals        bool  `json:"require_goals" toml:"require_goals" yaml:"require_goals"`
	RandomChallenge     bool  `json:"random_challenge" toml:"random_challenge" yaml:"random_challenge"`
	Enabled             bool  `json:"enabled" toml:"enabled" yaml:"enabled"`

	CreatedAt time.Time `json:"created_at" toml:"-" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" toml:"-" yaml:"-"`
}

// Repeats reports whether the alarm fires on a weekday schedule.
func (a Alarm) Repeats() bool {
	return len(a.Weekdays) > 0
}

// SnoozeLength returns the configured snooze duration.
func (a Alarm) SnoozeLength() time.Duration {
	return time.Duration(a.SnoozeMinutes) * time.Minute
}

// ScheduledRecord mirrors the trigger currently registered with the platform.
type ScheduledRecord struct {
	AlarmID string    `json:"alarm_id"`
	Label   string    `json:"label"`
	FireAt  time.Time `json:"fire_at"`
	Token   string    `json:"token"`
	Snooze  bool      `json:"snooze,omitempty"`
}

// Payload is delivered exactly once when a trigger fires.
type Payload struct {
	AlarmID             string    `json:"alarm_id"`
	Label               string    `json:"label"`
	RequireAffirmations bool      `json:"require_affirmations"`
	RequireGoals        bool      `json:"require_goals"`
	RandomChallenge     bool      `json:"random_challenge"`
	AntiCheatToken      string    `json:"anti_cheat_token"`
	FiredAt             time.Time `json:"fired_at"`
}

// RunStatus is the persisted lifecycle marker of an Alarm Run.
type RunStatus string

const (
	RunOpen      RunStatus = "open"
	RunSnoozed   RunStatus = "snoozed"
	RunCompleted RunStatus = "completed"
	RunDismissed RunStatus = "dismissed"
	RunAbandoned RunStatus = "abandoned"
)

// Terminal reports whether a run can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunDismissed || s == RunAbandoned
}

// LineScore is one persisted per-line similarity score.
type LineScore struct {
	Phase string  `json:"phase"`
	Line  string  `json:"line"`
	Score float64 `json:"score"`
}

// Run is one fired-alarm-to-dismissal episode.
type Run struct {
	ID          string      `json:"id"`
	AlarmID     string      `json:"alarm_id"`
	Token       string      `json:"token"`
	FiredAt     time.Time   `json:"fired_at"`
	DismissedAt *time.Time  `json:"dismissed_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Status      RunStatus   `json:"status"`
	SnoozesUsed int         `json:"snoozes_used"`
	Success     bool        `json:"success"`
	PhaseIndex  int         `json:"phase_index"`
	Attempts    int         `json:"attempts"`
	Transcripts []string    `json:"transcripts,omitempty"`
	Scores      []LineScore `json:"scores,omitempty"`
	CheatFlags  []string    `json:"cheat_flags,omitempty"`
	LastDetail  string      `json:"last_detail,omitempty"`
}

// Streak tracks consecutive days with a successful verification.
type Streak struct {
	Current            int    `json:"current"`
	Best               int    `json:"best"`
	LastCompletionDate string `json:"last_completion_date,omitempty"` // YYYY-MM-DD, local
}

// PermissionStatus mirrors a platform notification permission state.
type PermissionStatus string

const (
	PermissionNotDetermined PermissionStatus = "notDetermined"
	PermissionDenied        PermissionStatus = "denied"
	PermissionAuthorized    PermissionStatus = "authorized"
	PermissionProvisional   PermissionStatus = "provisional"
	PermissionEphemeral     PermissionStatus = "ephemeral"
)

// Granted reports whether the status allows scheduling.
func (p PermissionStatus) Granted() bool {
	switch p {
	case PermissionAuthorized, PermissionProvisional, PermissionEphemeral:
		return true
	default:
		return false
	}
}
