package platform

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/store"
)

type recordedRunner struct {
	mu    sync.Mutex
	calls [][]string
	out   map[string][]byte
	errs  map[string]error
}

func (r *recordedRunner) run(_ context.Context, argv []string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, argv)
	key := argv[0] + " " + argv[2]
	return r.out[key], r.errs[key]
}

func foundBinary(name string) (string, error) { return "/usr/bin/" + name, nil }

func TestSystemdRegisterBuildsWakeTimer(t *testing.T) {
	runner := &recordedRunner{}
	p := NewSystemd("/opt/wakeproof", zerolog.Nop()).WithRunner(runner.run, foundBinary)

	fireAt := time.Date(2026, 10, 16, 6, 45, 0, 0, time.Local)
	err := p.Register(context.Background(), model.ScheduledRecord{
		AlarmID: "a1",
		Label:   "Gym",
		FireAt:  fireAt,
		Token:   "5f0c2e1a-9b7d-4c3e-8f21-0a6b4d9e7c11",
	})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	argv := runner.calls[0]
	require.Equal(t, "systemd-run", argv[0])
	require.Contains(t, argv, "--unit=wakeproof-a1-5f0c2e1a")
	require.Contains(t, argv, "--on-calendar=2026-10-16 06:45:00")
	require.Contains(t, argv, "--timer-property=WakeSystem=yes")
	require.Equal(t, []string{"/opt/wakeproof", "fire", "a1"}, argv[len(argv)-3:])
}

func TestSystemdCancelIgnoresUnknownUnit(t *testing.T) {
	runner := &recordedRunner{
		out:  map[string][]byte{"systemctl stop": []byte("Failed to stop wakeproof-x.timer: Unit wakeproof-x.timer not loaded.")},
		errs: map[string]error{"systemctl stop": errors.New("exit status 5")},
	}
	p := NewSystemd("wakeproof", zerolog.Nop()).WithRunner(runner.run, foundBinary)

	require.NoError(t, p.Cancel(context.Background(), "x"))
	require.Equal(t, []string{"systemctl", "--user", "stop", "wakeproof-x-*.timer"}, runner.calls[0])
}

func TestSystemdCancelSurfacesOtherFailures(t *testing.T) {
	runner := &recordedRunner{
		out:  map[string][]byte{"systemctl stop": []byte("Failed to connect to bus")},
		errs: map[string]error{"systemctl stop": errors.New("exit status 1")},
	}
	p := NewSystemd("wakeproof", zerolog.Nop()).WithRunner(runner.run, foundBinary)

	require.Error(t, p.Cancel(context.Background(), "x"))
}

func TestSystemdCanScheduleExact(t *testing.T) {
	t.Run("manager reachable", func(t *testing.T) {
		runner := &recordedRunner{}
		p := NewSystemd("wakeproof", zerolog.Nop()).WithRunner(runner.run, foundBinary)
		require.True(t, p.CanScheduleExact(context.Background()))
	})

	t.Run("binary missing", func(t *testing.T) {
		runner := &recordedRunner{}
		missing := func(name string) (string, error) { return "", errors.New("not found: " + name) }
		p := NewSystemd("wakeproof", zerolog.Nop()).WithRunner(runner.run, missing)
		require.False(t, p.CanScheduleExact(context.Background()))
		require.Empty(t, runner.calls)
	})

	t.Run("manager down", func(t *testing.T) {
		runner := &recordedRunner{errs: map[string]error{"systemctl show": errors.New("no bus")}}
		p := NewSystemd("wakeproof", zerolog.Nop()).WithRunner(runner.run, foundBinary)
		require.False(t, p.CanScheduleExact(context.Background()))
	})
}

func TestUnitNameEscapesID(t *testing.T) {
	require.Equal(t, "wakeproof-gym_x206_x3a45-abc", UnitName(model.ScheduledRecord{AlarmID: "gym 6:45", Token: "abc"}))
	require.Equal(t, "wakeproof-a_x2db_x2a-*.timer", TimerPattern("a-b*"))

	seen := map[string]string{}
	for _, id := range []string{"a b", "a_b", "a.b", "a-b", "a_x20b", "ab"} {
		escaped := EscapeID(id)
		require.NotContains(t, escaped, "-")
		require.NotContains(t, seen, escaped, "%q collides with %q", id, seen[escaped])
		seen[escaped] = id
	}
}

func TestTimerPatternStaysWithinAlarm(t *testing.T) {
	pattern := TimerPattern("a")
	own := UnitName(model.ScheduledRecord{AlarmID: "a", Token: "t1"}) + ".timer"
	other := UnitName(model.ScheduledRecord{AlarmID: "a-b", Token: "t1"}) + ".timer"

	matched, err := path.Match(pattern, own)
	require.NoError(t, err)
	require.True(t, matched)
	matched, err = path.Match(pattern, other)
	require.NoError(t, err)
	require.False(t, matched)
}

// userManager mimics the transient unit bookkeeping of a user systemd
// manager: a unit name stays taken while its timer or service is loaded.
type userManager struct {
	mu     sync.Mutex
	loaded map[string]bool
}

func newUserManager() *userManager {
	return &userManager{loaded: map[string]bool{}}
}

func (m *userManager) run(_ context.Context, argv []string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch argv[0] {
	case "systemd-run":
		for _, arg := range argv {
			unit, ok := strings.CutPrefix(arg, "--unit=")
			if !ok {
				continue
			}
			if m.loaded[unit+".timer"] || m.loaded[unit+".service"] {
				return []byte("Failed to start transient timer unit: Unit " + unit + ".timer was already loaded or has a fragment file."), errors.New("exit status 1")
			}
			m.loaded[unit+".timer"] = true
		}
	case "systemctl":
		if argv[2] == "stop" {
			for name := range m.loaded {
				if matched, _ := path.Match(argv[3], name); matched {
					delete(m.loaded, name)
				}
			}
		}
	}
	return nil, nil
}

// fire elapses every timer of alarmID, leaving its service running.
func (m *userManager) fire(alarmID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.loaded {
		unit, ok := strings.CutSuffix(name, ".timer")
		if ok && strings.HasPrefix(unit, unitPrefix+EscapeID(alarmID)+"-") {
			delete(m.loaded, name)
			m.loaded[unit+".service"] = true
		}
	}
}

func (m *userManager) timers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for name := range m.loaded {
		if strings.HasSuffix(name, ".timer") {
			n++
		}
	}
	return n
}

func TestSystemdReArmsFromRunningService(t *testing.T) {
	manager := newUserManager()
	p := NewSystemd("wakeproof", zerolog.Nop()).WithRunner(manager.run, foundBinary)
	ctx := context.Background()
	fireAt := time.Date(2026, 10, 16, 6, 45, 0, 0, time.Local)

	require.NoError(t, p.Register(ctx, model.ScheduledRecord{AlarmID: "a1", FireAt: fireAt, Token: "first-token"}))
	manager.fire("a1")

	// Snooze from inside the running fire service.
	require.NoError(t, p.Cancel(ctx, "a1"))
	require.NoError(t, p.Register(ctx, model.ScheduledRecord{AlarmID: "a1", FireAt: fireAt.Add(5 * time.Minute), Token: "second-token", Snooze: true}))
	require.Equal(t, 1, manager.timers())

	// Next day's occurrence of a repeating alarm.
	manager.fire("a1")
	require.NoError(t, p.Cancel(ctx, "a1"))
	require.NoError(t, p.Register(ctx, model.ScheduledRecord{AlarmID: "a1", FireAt: fireAt.AddDate(0, 0, 1), Token: "third-token"}))
	require.Equal(t, 1, manager.timers())

	// Re-scheduling before the timer elapses replaces it.
	require.NoError(t, p.Cancel(ctx, "a1"))
	require.NoError(t, p.Register(ctx, model.ScheduledRecord{AlarmID: "a1", FireAt: fireAt.AddDate(0, 0, 2), Token: "fourth-token"}))
	require.Equal(t, 1, manager.timers())
}

func TestMemoryRejectsDoubleRegistration(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	record := model.ScheduledRecord{AlarmID: "a1"}

	require.NoError(t, m.Register(ctx, record))
	require.Error(t, m.Register(ctx, record))
	require.NoError(t, m.Cancel(ctx, "a1"))
	require.NoError(t, m.Cancel(ctx, "a1"))
	require.NoError(t, m.Register(ctx, record))
	require.Equal(t, 1, m.Len())
}

func newTestGate(t *testing.T, prompt Prompter) *StoreGate {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewStoreGate(s, prompt)
}

func TestStoreGatePromptsOnlyFromNotDetermined(t *testing.T) {
	prompts := 0
	gate := newTestGate(t, func(context.Context) (bool, error) {
		prompts++
		return false, nil
	})
	ctx := context.Background()

	status, err := gate.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, model.PermissionNotDetermined, status)

	granted, err := gate.Request(ctx)
	require.NoError(t, err)
	require.False(t, granted)

	status, err = gate.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, model.PermissionDenied, status)

	granted, err = gate.Request(ctx)
	require.NoError(t, err)
	require.False(t, granted)
	require.Equal(t, 1, prompts)

	require.NoError(t, gate.Reset(ctx))
	status, err = gate.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, model.PermissionNotDetermined, status)
}

func TestStoreGateAbortedPromptLeavesStatusUndecided(t *testing.T) {
	gate := newTestGate(t, func(context.Context) (bool, error) {
		return false, ErrPromptAborted
	})
	ctx := context.Background()

	_, err := gate.Request(ctx)
	require.ErrorIs(t, err, ErrPromptAborted)

	status, err := gate.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, model.PermissionNotDetermined, status)
}

func TestStoreGateProvisionalCountsAsGranted(t *testing.T) {
	gate := newTestGate(t, func(context.Context) (bool, error) {
		t.Fatal("prompt must not run")
		return false, nil
	})
	ctx := context.Background()

	require.NoError(t, gate.Set(ctx, model.PermissionProvisional))
	granted, err := gate.Request(ctx)
	require.NoError(t, err)
	require.True(t, granted)
}
