package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbright/wakeproof/internal/model"
)

const (
	unitPrefix      = "wakeproof-"
	calendarLayout  = "2006-01-02 15:04:05"
	commandTimeout  = 5 * time.Second
	systemdRunBin   = "systemd-run"
	systemctlBin    = "systemctl"
	notLoadedMarker = "not loaded"
)

// Runner executes argv and returns combined output.
type Runner func(ctx context.Context, argv []string) ([]byte, error)

// Systemd schedules transient user timers with WakeSystem=yes so the host
// resumes from suspend and launches `wakeproof fire <id>`.
type Systemd struct {
	binary string
	run    Runner
	lookup func(string) (string, error)
	logger zerolog.Logger
}

// NewSystemd constructs a systemd user-timer platform. An empty binary path
// resolves to the running executable.
func NewSystemd(binary string, logger zerolog.Logger) *Systemd {
	if strings.TrimSpace(binary) == "" {
		if exe, err := os.Executable(); err == nil {
			binary = exe
		} else {
			binary = "wakeproof"
		}
	}
	return &Systemd{
		binary: binary,
		run:    runCommand,
		lookup: exec.LookPath,
		logger: logger,
	}
}

// WithRunner replaces command execution, used by tests.
func (s *Systemd) WithRunner(run Runner, lookup func(string) (string, error)) *Systemd {
	s.run = run
	if lookup != nil {
		s.lookup = lookup
	}
	return s
}

func (s *Systemd) Name() string { return "systemd" }

// Register creates a transient timer for record.FireAt. Each registration
// gets its own unit so a re-arm from inside a still-running fire service
// never reuses a live unit name.
func (s *Systemd) Register(ctx context.Context, record model.ScheduledRecord) error {
	unit := UnitName(record)
	argv := []string{
		systemdRunBin,
		"--user",
		"--unit=" + unit,
		"--on-calendar=" + record.FireAt.Local().Format(calendarLayout),
		"--timer-property=WakeSystem=yes",
		"--timer-property=AccuracySec=1s",
		"--description=wakeproof alarm " + record.Label,
		"--collect",
		s.binary, "fire", record.AlarmID,
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if _, err := s.run(runCtx, argv); err != nil {
		return fmt.Errorf("register timer %s: %w", unit, err)
	}

	s.logger.Debug().
		Str("unit", unit).
		Time("fire_at", record.FireAt).
		Msg("timer registered")
	return nil
}

// Cancel stops every timer registered for alarmID. Services already running
// are left alone. Unknown timers are not an error.
func (s *Systemd) Cancel(ctx context.Context, alarmID string) error {
	pattern := TimerPattern(alarmID)
	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := s.run(runCtx, []string{systemctlBin, "--user", "stop", pattern})
	if err != nil {
		if strings.Contains(strings.ToLower(string(out)), notLoadedMarker) {
			return nil
		}
		return fmt.Errorf("cancel timers %s: %w", pattern, err)
	}
	return nil
}

// CanScheduleExact reports whether the user systemd manager is reachable.
func (s *Systemd) CanScheduleExact(ctx context.Context) bool {
	for _, bin := range []string{systemdRunBin, systemctlBin} {
		if _, err := s.lookup(bin); err != nil {
			s.logger.Debug().Str("binary", bin).Err(err).Msg("platform binary missing")
			return false
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if _, err := s.run(runCtx, []string{systemctlBin, "--user", "show", "--property=Version"}); err != nil {
		s.logger.Debug().Err(err).Msg("user systemd manager unavailable")
		return false
	}
	return true
}

// UnitName returns the transient unit name for one registration of record:
// the escaped alarm id followed by a per-registration suffix.
func UnitName(record model.ScheduledRecord) string {
	return unitPrefix + EscapeID(record.AlarmID) + "-" + unitSuffix(record)
}

// TimerPattern matches the timers of every registration of alarmID. Escaped
// ids never contain '-', so the pattern cannot reach another alarm's units.
func TimerPattern(alarmID string) string {
	return unitPrefix + EscapeID(alarmID) + "-*.timer"
}

// EscapeID maps an alarm id onto unit-name-safe characters, one to one.
// ASCII letters and digits pass through and every other byte becomes _xNN.
// The output holds no glob metacharacters.
func EscapeID(alarmID string) string {
	var b strings.Builder
	for i := 0; i < len(alarmID); i++ {
		c := alarmID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_x%02x", c)
		}
	}
	return b.String()
}

func unitSuffix(record model.ScheduledRecord) string {
	var b strings.Builder
	for i := 0; i < len(record.Token) && b.Len() < 8; i++ {
		c := record.Token[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() > 0 {
		return b.String()
	}
	return strconv.FormatInt(record.FireAt.Unix(), 36)
}

func runCommand(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("command argv cannot be empty")
	}
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return out, fmt.Errorf("%s failed: %w", argv[0], err)
		}
		return out, fmt.Errorf("%s failed: %w (%s)", argv[0], err, trimmed)
	}
	return out, nil
}
