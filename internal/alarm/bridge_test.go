package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/platform"
	"github.com/rbright/wakeproof/internal/store"
)

type staticGate struct {
	status model.PermissionStatus
}

func (g staticGate) Status(context.Context) (model.PermissionStatus, error) { return g.status, nil }
func (g staticGate) Request(context.Context) (bool, error)                  { return g.status.Granted(), nil }

type bridgeFixture struct {
	bridge   *Bridge
	store    *store.Store
	platform *platform.Memory
	now      time.Time
}

func newBridgeFixture(t *testing.T, status model.PermissionStatus) *bridgeFixture {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &bridgeFixture{
		store:    s,
		platform: platform.NewMemory(),
		now:      time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC),
	}
	f.bridge = NewBridge(s, f.platform, staticGate{status: status}, zerolog.Nop()).
		WithClock(func() time.Time { return f.now })
	return f
}

func testAlarm(id string) model.Alarm {
	return model.Alarm{
		ID:                  id,
		Label:               "Wake",
		Hour:                6,
		Minute:              45,
		MaxSnoozes:          3,
		SnoozeMinutes:       9,
		RequireAffirmations: true,
		Enabled:             true,
	}
}

func TestScheduleRegistersTriggerAndRecord(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	id, err := f.bridge.Schedule(ctx, testAlarm("a1"))
	require.NoError(t, err)
	require.Equal(t, "a1", id)

	trigger, ok := f.platform.Trigger("a1")
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 10, 16, 6, 45, 0, 0, time.UTC), trigger.FireAt)
	require.NotEmpty(t, trigger.Token)

	records, err := f.bridge.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, trigger, records[0])
}

func TestScheduleAssignsIDWhenMissing(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)

	id, err := f.bridge.Schedule(context.Background(), testAlarm(""))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, ok := f.platform.Trigger(id)
	require.True(t, ok)
}

func TestRescheduleKeepsSingleTrigger(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	_, err := f.bridge.Schedule(ctx, testAlarm("a1"))
	require.NoError(t, err)

	edited := testAlarm("a1")
	edited.Hour = 9
	_, err = f.bridge.Schedule(ctx, edited)
	require.NoError(t, err)

	require.Equal(t, 1, f.platform.Len())
	trigger, _ := f.platform.Trigger("a1")
	require.Equal(t, 9, trigger.FireAt.Hour())
}

func TestSchedulePermissionDeniedLeavesNoState(t *testing.T) {
	for _, status := range []model.PermissionStatus{model.PermissionDenied, model.PermissionNotDetermined} {
		t.Run(string(status), func(t *testing.T) {
			f := newBridgeFixture(t, status)

			_, err := f.bridge.Schedule(context.Background(), testAlarm("a1"))
			require.True(t, werrors.Is(err, werrors.EPermissionDenied))
			require.Equal(t, 3, werrors.ExitCode(err))

			registers, _ := f.platform.Calls()
			require.Zero(t, registers)
			alarms, err := f.bridge.Alarms(context.Background())
			require.NoError(t, err)
			require.Empty(t, alarms)
		})
	}
}

func TestScheduleWithoutExactCapabilityIsPermissionDenied(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	f.platform.SetExact(false)

	_, err := f.bridge.Schedule(context.Background(), testAlarm("a1"))
	require.True(t, werrors.Is(err, werrors.EPermissionDenied))
}

func TestScheduleRegisterFailureIsAllOrNothing(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()
	f.platform.FailRegister(errors.New("bus down"))

	_, err := f.bridge.Schedule(ctx, testAlarm("a1"))
	require.True(t, werrors.Is(err, werrors.EScheduleFailed))

	records, err := f.bridge.List(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
	alarms, err := f.bridge.Alarms(ctx)
	require.NoError(t, err)
	require.Empty(t, alarms)
}

func TestScheduleDisabledAlarmHasNoTrigger(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	alarm := testAlarm("a1")
	_, err := f.bridge.Schedule(ctx, alarm)
	require.NoError(t, err)

	alarm.Enabled = false
	_, err = f.bridge.Schedule(ctx, alarm)
	require.NoError(t, err)

	require.Zero(t, f.platform.Len())
	records, err := f.bridge.List(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
	saved, err := f.bridge.Alarm(ctx, "a1")
	require.NoError(t, err)
	require.False(t, saved.Enabled)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	_, err := f.bridge.Schedule(ctx, testAlarm("a1"))
	require.NoError(t, err)

	require.NoError(t, f.bridge.Cancel(ctx, "a1"))
	require.NoError(t, f.bridge.Cancel(ctx, "a1"))
	require.NoError(t, f.bridge.Cancel(ctx, "never-existed"))

	require.Zero(t, f.platform.Len())
	records, err := f.bridge.List(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRemoveDeletesAlarm(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	_, err := f.bridge.Schedule(ctx, testAlarm("a1"))
	require.NoError(t, err)
	require.NoError(t, f.bridge.Remove(ctx, "a1"))

	_, err = f.bridge.Alarm(ctx, "a1")
	require.True(t, werrors.Is(err, werrors.EAlarmNotFound))
	require.True(t, werrors.Is(f.bridge.Remove(ctx, "a1"), werrors.EAlarmNotFound))
}

func TestFireWritesMailboxOnceAndDisablesOneShot(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	_, err := f.bridge.Schedule(ctx, testAlarm("a1"))
	require.NoError(t, err)
	trigger, _ := f.platform.Trigger("a1")

	f.now = trigger.FireAt
	payload, err := f.bridge.Fire(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, trigger.Token, payload.AntiCheatToken)
	require.True(t, payload.RequireAffirmations)

	taken, err := f.bridge.GetLastTriggered(ctx)
	require.NoError(t, err)
	require.NotNil(t, taken)
	require.Equal(t, payload.AntiCheatToken, taken.AntiCheatToken)

	again, err := f.bridge.GetLastTriggered(ctx)
	require.NoError(t, err)
	require.Nil(t, again)

	saved, err := f.bridge.Alarm(ctx, "a1")
	require.NoError(t, err)
	require.False(t, saved.Enabled)
	require.Zero(t, f.platform.Len())
}

func TestFireRearmsRepeatingAlarm(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	alarm := testAlarm("a1")
	alarm.Weekdays = []int{1, 2, 3, 4, 5}
	_, err := f.bridge.Schedule(ctx, alarm)
	require.NoError(t, err)
	first, _ := f.platform.Trigger("a1")

	f.now = first.FireAt.Add(time.Second)
	_, err = f.bridge.Fire(ctx, "a1")
	require.NoError(t, err)

	next, ok := f.platform.Trigger("a1")
	require.True(t, ok)
	require.True(t, next.FireAt.After(first.FireAt))
	require.NotEqual(t, first.Token, next.Token)

	records, err := f.bridge.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestFireUnknownAlarmLeavesMailboxEmpty(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	_, err := f.bridge.Fire(ctx, "missing")
	require.True(t, werrors.Is(err, werrors.EAlarmNotFound))

	payload, err := f.bridge.GetLastTriggered(ctx)
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestFireWithoutRecordMintsToken(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	alarm := testAlarm("a1")
	alarm.Enabled = false
	_, err := f.bridge.Schedule(ctx, alarm)
	require.NoError(t, err)

	payload, err := f.bridge.Fire(ctx, "a1")
	require.NoError(t, err)
	require.NotEmpty(t, payload.AntiCheatToken)
}

func TestSnoozeReplacesTrigger(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	_, err := f.bridge.Schedule(ctx, testAlarm("a1"))
	require.NoError(t, err)

	record, err := f.bridge.Snooze(ctx, "a1", 9*time.Minute)
	require.NoError(t, err)
	require.True(t, record.Snooze)
	require.Equal(t, f.now.Add(9*time.Minute), record.FireAt)

	trigger, ok := f.platform.Trigger("a1")
	require.True(t, ok)
	require.Equal(t, record, trigger)
	require.Equal(t, 1, f.platform.Len())
}

func TestConcurrentFireAndCancelKeepRecordsConsistent(t *testing.T) {
	f := newBridgeFixture(t, model.PermissionAuthorized)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := f.bridge.Schedule(ctx, testAlarm(id))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.bridge.Fire(ctx, "a")
		_, _ = f.bridge.Fire(ctx, "b")
	}()
	go func() {
		defer wg.Done()
		_ = f.bridge.Cancel(ctx, "c")
	}()
	wg.Wait()

	records, err := f.bridge.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "d", records[0].AlarmID)
}
