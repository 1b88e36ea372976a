package alarm

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/platform"
	"github.com/rbright/wakeproof/internal/store"
)

// Bridge keeps persisted alarms and platform triggers in step. A scheduled
// record exists exactly when a platform trigger is registered for its id.
type Bridge struct {
	store    *store.Store
	platform platform.Platform
	gate     platform.Gate
	now      func() time.Time
	logger   zerolog.Logger
}

// NewBridge constructs a bridge over s, p, and gate.
func NewBridge(s *store.Store, p platform.Platform, gate platform.Gate, logger zerolog.Logger) *Bridge {
	return &Bridge{
		store:    s,
		platform: p,
		gate:     gate,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the time source.
func (b *Bridge) WithClock(now func() time.Time) *Bridge {
	b.now = now
	return b
}

// Schedule saves alarm and registers its next trigger, replacing any prior
// trigger for the same id. Disabled alarms are saved with no trigger.
func (b *Bridge) Schedule(ctx context.Context, alarm model.Alarm) (string, error) {
	if strings.TrimSpace(alarm.ID) == "" {
		alarm.ID = uuid.NewString()
	}
	if err := validateAlarm(alarm); err != nil {
		return "", err
	}
	if err := b.checkPermission(ctx); err != nil {
		return "", err
	}

	if !alarm.Enabled {
		if err := b.platform.Cancel(ctx, alarm.ID); err != nil {
			return "", werrors.Wrap(werrors.EScheduleFailed, "cancel trigger", err)
		}
		err := b.store.Update(ctx, func(state *store.State) error {
			state.Alarms[alarm.ID] = stampAlarm(state.Alarms, alarm, b.now())
			delete(state.Scheduled, alarm.ID)
			return nil
		})
		if err != nil {
			return "", werrors.Wrap(werrors.EStore, "save alarm", err)
		}
		return alarm.ID, nil
	}

	fireAt := NextFire(alarm.Hour, alarm.Minute, alarm.Weekdays, b.now())
	if _, err := b.arm(ctx, alarm, fireAt, false); err != nil {
		return "", err
	}
	return alarm.ID, nil
}

// Snooze replaces the trigger for id with a one-shot trigger d from now.
func (b *Bridge) Snooze(ctx context.Context, id string, d time.Duration) (model.ScheduledRecord, error) {
	if d <= 0 {
		return model.ScheduledRecord{}, werrors.New(werrors.EUsage, "snooze length must be positive")
	}
	if err := b.checkPermission(ctx); err != nil {
		return model.ScheduledRecord{}, err
	}
	alarm, err := b.Alarm(ctx, id)
	if err != nil {
		return model.ScheduledRecord{}, err
	}

	fireAt := b.now().Add(d).Truncate(time.Second)
	return b.arm(ctx, alarm, fireAt, true)
}

// arm registers a trigger for alarm at fireAt and persists the alarm with
// its scheduled record. Nothing new is persisted when registration fails.
func (b *Bridge) arm(ctx context.Context, alarm model.Alarm, fireAt time.Time, snooze bool) (model.ScheduledRecord, error) {
	record := model.ScheduledRecord{
		AlarmID: alarm.ID,
		Label:   alarm.Label,
		FireAt:  fireAt,
		Token:   uuid.NewString(),
		Snooze:  snooze,
	}

	if err := b.platform.Cancel(ctx, alarm.ID); err != nil {
		return model.ScheduledRecord{}, werrors.Wrap(werrors.EScheduleFailed, "cancel previous trigger", err)
	}
	if err := b.platform.Register(ctx, record); err != nil {
		b.dropRecord(ctx, alarm.ID)
		return model.ScheduledRecord{}, werrors.Wrap(werrors.EScheduleFailed, "register trigger", err)
	}

	err := b.store.Update(ctx, func(state *store.State) error {
		if snooze {
			if _, ok := state.Alarms[alarm.ID]; !ok {
				return werrors.Newf(werrors.EAlarmNotFound, "alarm %s was removed", alarm.ID)
			}
		} else {
			state.Alarms[alarm.ID] = stampAlarm(state.Alarms, alarm, b.now())
		}
		state.Scheduled[alarm.ID] = record
		return nil
	})
	if err != nil {
		if cancelErr := b.platform.Cancel(ctx, alarm.ID); cancelErr != nil {
			b.logger.Error().Err(cancelErr).Str("alarm_id", alarm.ID).Msg("rollback trigger failed")
		}
		if werrors.GetCode(err) != "" {
			return model.ScheduledRecord{}, err
		}
		return model.ScheduledRecord{}, werrors.Wrap(werrors.EStore, "persist schedule", err)
	}

	b.logger.Info().
		Str("alarm_id", alarm.ID).
		Time("fire_at", fireAt).
		Bool("snooze", snooze).
		Msg("alarm scheduled")
	return record, nil
}

// dropRecord removes a scheduled record whose trigger is already gone.
func (b *Bridge) dropRecord(ctx context.Context, id string) {
	err := b.store.Update(ctx, func(state *store.State) error {
		delete(state.Scheduled, id)
		return nil
	})
	if err != nil {
		b.logger.Error().Err(err).Str("alarm_id", id).Msg("drop stale schedule record failed")
	}
}

// Cancel unregisters the trigger for id and disables the alarm. Unknown ids
// are not an error.
func (b *Bridge) Cancel(ctx context.Context, id string) error {
	if err := b.platform.Cancel(ctx, id); err != nil {
		return werrors.Wrap(werrors.EScheduleFailed, "cancel trigger", err)
	}
	err := b.store.Update(ctx, func(state *store.State) error {
		delete(state.Scheduled, id)
		if alarm, ok := state.Alarms[id]; ok && alarm.Enabled {
			alarm.Enabled = false
			alarm.UpdatedAt = b.now()
			state.Alarms[id] = alarm
		}
		return nil
	})
	if err != nil {
		return werrors.Wrap(werrors.EStore, "persist cancel", err)
	}
	return nil
}

// Remove cancels and deletes the alarm.
func (b *Bridge) Remove(ctx context.Context, id string) error {
	if _, err := b.Alarm(ctx, id); err != nil {
		return err
	}
	if err := b.Cancel(ctx, id); err != nil {
		return err
	}
	err := b.store.Update(ctx, func(state *store.State) error {
		delete(state.Alarms, id)
		return nil
	})
	if err != nil {
		return werrors.Wrap(werrors.EStore, "delete alarm", err)
	}
	return nil
}

// List returns scheduled records ordered by fire time.
func (b *Bridge) List(ctx context.Context) ([]model.ScheduledRecord, error) {
	var records []model.ScheduledRecord
	err := b.store.View(ctx, func(state store.State) error {
		records = make([]model.ScheduledRecord, 0, len(state.Scheduled))
		for _, record := range state.Scheduled {
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, werrors.Wrap(werrors.EStore, "list schedule", err)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].FireAt.Equal(records[j].FireAt) {
			return records[i].AlarmID < records[j].AlarmID
		}
		return records[i].FireAt.Before(records[j].FireAt)
	})
	return records, nil
}

// Alarms returns every saved alarm ordered by time of day.
func (b *Bridge) Alarms(ctx context.Context) ([]model.Alarm, error) {
	var alarms []model.Alarm
	err := b.store.View(ctx, func(state store.State) error {
		alarms = make([]model.Alarm, 0, len(state.Alarms))
		for _, alarm := range state.Alarms {
			alarms = append(alarms, alarm)
		}
		return nil
	})
	if err != nil {
		return nil, werrors.Wrap(werrors.EStore, "list alarms", err)
	}
	sort.Slice(alarms, func(i, j int) bool {
		left := alarms[i].Hour*60 + alarms[i].Minute
		right := alarms[j].Hour*60 + alarms[j].Minute
		if left == right {
			return alarms[i].ID < alarms[j].ID
		}
		return left < right
	})
	return alarms, nil
}

// Alarm returns the saved alarm for id.
func (b *Bridge) Alarm(ctx context.Context, id string) (model.Alarm, error) {
	var (
		alarm model.Alarm
		found bool
	)
	err := b.store.View(ctx, func(state store.State) error {
		alarm, found = state.Alarms[id]
		return nil
	})
	if err != nil {
		return model.Alarm{}, werrors.Wrap(werrors.EStore, "load alarm", err)
	}
	if !found {
		return model.Alarm{}, werrors.Newf(werrors.EAlarmNotFound, "alarm %s not found", id)
	}
	return alarm, nil
}

// GetLastTriggered consumes the mailbox.
func (b *Bridge) GetLastTriggered(ctx context.Context) (*model.Payload, error) {
	payload, err := b.store.TakeLastTriggered(ctx)
	if err != nil {
		return nil, werrors.Wrap(werrors.EStore, "take last triggered", err)
	}
	return payload, nil
}

// Fire handles an elapsed trigger for id. In one store update it builds the
// payload, removes the scheduled record, and writes the mailbox. Repeating
// alarms are then re-armed for their next occurrence.
func (b *Bridge) Fire(ctx context.Context, id string) (model.Payload, error) {
	var (
		payload model.Payload
		alarm   model.Alarm
	)
	now := b.now()

	err := b.store.Update(ctx, func(state *store.State) error {
		var ok bool
		alarm, ok = state.Alarms[id]
		if !ok {
			return werrors.Newf(werrors.EAlarmNotFound, "alarm %s not found", id)
		}

		token := ""
		if record, scheduled := state.Scheduled[id]; scheduled {
			token = record.Token
		}
		if token == "" {
			token = uuid.NewString()
		}

		payload = model.Payload{
			AlarmID:             alarm.ID,
			Label:               alarm.Label,
			RequireAffirmations: alarm.RequireAffirmations,
			RequireGoals:        alarm.RequireGoals,
			RandomChallenge:     alarm.RandomChallenge,
			AntiCheatToken:      token,
			FiredAt:             now,
		}

		delete(state.Scheduled, id)
		if !alarm.Repeats() && alarm.Enabled {
			alarm.Enabled = false
			alarm.UpdatedAt = now
			state.Alarms[id] = alarm
		}
		state.LastTriggered = &payload
		return nil
	})
	if err != nil {
		if werrors.GetCode(err) != "" {
			return model.Payload{}, err
		}
		return model.Payload{}, werrors.Wrap(werrors.EStore, "record fire", err)
	}

	b.logger.Info().
		Str("alarm_id", id).
		Str("token", payload.AntiCheatToken).
		Msg("alarm fired")

	if err := b.platform.Cancel(ctx, id); err != nil {
		b.logger.Warn().Err(err).Str("alarm_id", id).Msg("clear elapsed trigger failed")
	}
	if alarm.Repeats() && alarm.Enabled {
		if _, err := b.Schedule(ctx, alarm); err != nil {
			b.logger.Error().Err(err).Str("alarm_id", id).Msg("re-arm repeating alarm failed")
		}
	}
	return payload, nil
}

func (b *Bridge) checkPermission(ctx context.Context) error {
	status, err := b.gate.Status(ctx)
	if err != nil {
		return werrors.Wrap(werrors.EStore, "read permission status", err)
	}
	switch {
	case status.Granted():
	case status == model.PermissionDenied:
		return werrors.NewWithDetails(
			werrors.EPermissionDenied,
			"wake alarm permission denied; run `wakeproof permission reset` then `wakeproof permission request`",
			map[string]string{"status": string(status)},
		)
	default:
		return werrors.NewWithDetails(
			werrors.EPermissionDenied,
			"wake alarm permission not granted; run `wakeproof permission request`",
			map[string]string{"status": string(status)},
		)
	}

	if !b.platform.CanScheduleExact(ctx) {
		return werrors.NewWithDetails(
			werrors.EPermissionDenied,
			"platform cannot schedule exact wake triggers",
			map[string]string{"platform": b.platform.Name()},
		)
	}
	return nil
}

func validateAlarm(alarm model.Alarm) error {
	if alarm.Hour < 0 || alarm.Hour > 23 || alarm.Minute < 0 || alarm.Minute > 59 {
		return werrors.Newf(werrors.EUsage, "invalid alarm time %02d:%02d", alarm.Hour, alarm.Minute)
	}
	for _, wd := range alarm.Weekdays {
		if wd < 0 || wd > 6 {
			return werrors.Newf(werrors.EUsage, "invalid weekday %d", wd)
		}
	}
	if alarm.MaxSnoozes < 0 || alarm.SnoozeMinutes < 0 {
		return werrors.New(werrors.EUsage, "snooze policy cannot be negative")
	}
	return nil
}

func stampAlarm(existing map[string]model.Alarm, alarm model.Alarm, now time.Time) model.Alarm {
	if prior, ok := existing[alarm.ID]; ok && !prior.CreatedAt.IsZero() {
		alarm.CreatedAt = prior.CreatedAt
	}
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = now
	}
	alarm.UpdatedAt = now
	return alarm
}
