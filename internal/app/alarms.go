package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/rbright/wakeproof/internal/alarm"
	"github.com/rbright/wakeproof/internal/cli"
	"github.com/rbright/wakeproof/internal/config"
	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/model"
)

// alarmView is the listing shape for every output format.
type alarmView struct {
	ID            string     `json:"id" yaml:"id"`
	Label         string     `json:"label,omitempty" yaml:"label,omitempty"`
	Time          string     `json:"time" yaml:"time"`
	Days          string     `json:"days" yaml:"days"`
	Enabled       bool       `json:"enabled" yaml:"enabled"`
	MaxSnoozes    int        `json:"max_snoozes" yaml:"max_snoozes"`
	SnoozeMinutes int        `json:"snooze_minutes" yaml:"snooze_minutes"`
	Phases        []string   `json:"phases" yaml:"phases"`
	NextFire      *time.Time `json:"next_fire,omitempty" yaml:"next_fire,omitempty"`
	Snoozed       bool       `json:"snoozed,omitempty" yaml:"snoozed,omitempty"`
}

// alarmFile is the TOML document read by import and written by export.
type alarmFile struct {
	Alarms []importedAlarm `toml:"alarm"`
}

// importedAlarm leaves unset fields nil so defaults apply.
type importedAlarm struct {
	ID                  string `toml:"id"`
	Label               string `toml:"label"`
	At                  string `toml:"at,omitempty"`
	Hour                *int   `toml:"hour"`
	Minute              *int   `toml:"minute"`
	Weekdays            []int  `toml:"weekdays"`
	MaxSnoozes          *int   `toml:"max_snoozes"`
	SnoozeMinutes       *int   `toml:"snooze_minutes"`
	RequireAffirmations *bool  `toml:"require_affirmations"`
	RequireGoals        *bool  `toml:"require_goals"`
	RandomChallenge     *bool  `toml:"random_challenge"`
	Enabled             *bool  `toml:"enabled"`
}

// AlarmAdd creates or replaces an alarm and schedules its next trigger.
func (r *Runner) AlarmAdd(ctx context.Context, opts cli.AlarmAddOptions) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}

	hour, minute, err := alarm.ParseClock(opts.At)
	if err != nil {
		return werrors.Wrap(werrors.EUsage, "invalid --at", err)
	}
	weekdays, err := alarm.ParseWeekdays(opts.Days)
	if err != nil {
		return werrors.Wrap(werrors.EUsage, "invalid --days", err)
	}

	a := newAlarm(rt.cfg())
	a.ID = strings.TrimSpace(opts.ID)
	a.Label = strings.TrimSpace(opts.Label)
	a.Hour, a.Minute, a.Weekdays = hour, minute, weekdays
	a.RequireAffirmations = opts.Affirmations
	a.RequireGoals = opts.Goals
	a.RandomChallenge = opts.Challenge
	a.Enabled = !opts.Disabled
	if opts.MaxSnoozesSet {
		a.MaxSnoozes = opts.MaxSnoozes
	}
	if opts.SnoozeMinutesSet {
		a.SnoozeMinutes = opts.SnoozeMinutes
	}

	id, err := rt.bridge.Schedule(ctx, a)
	if err != nil {
		return err
	}
	if !a.Enabled {
		fmt.Fprintf(r.Stdout, "saved %s (disabled)\n", id)
		return nil
	}
	next := alarm.NextFire(a.Hour, a.Minute, a.Weekdays, r.now())
	fmt.Fprintf(r.Stdout, "scheduled %s for %s\n", id, next.Format("Mon Jan 2 15:04"))
	return nil
}

// AlarmList prints alarms with their pending trigger.
func (r *Runner) AlarmList(ctx context.Context, format string) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}
	alarms, err := rt.bridge.Alarms(ctx)
	if err != nil {
		return err
	}
	records, err := rt.bridge.List(ctx)
	if err != nil {
		return err
	}
	views := alarmViews(alarms, records)

	switch format {
	case "json":
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return werrors.Wrap(werrors.EInternal, "encode json", err)
		}
		_, err = fmt.Fprintln(r.Stdout, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(r.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return werrors.Wrap(werrors.EInternal, "encode yaml", err)
		}
		return enc.Close()
	default:
		return writeAlarmTable(r.Stdout, views)
	}
}

// AlarmCancel removes the pending trigger and disables the alarm.
func (r *Runner) AlarmCancel(ctx context.Context, id string) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}
	if _, err := rt.bridge.Alarm(ctx, id); err != nil {
		return err
	}
	if err := rt.bridge.Cancel(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(r.Stdout, "cancelled %s\n", id)
	return nil
}

// AlarmRemove deletes the alarm and its trigger.
func (r *Runner) AlarmRemove(ctx context.Context, id string) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}
	if err := rt.bridge.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(r.Stdout, "removed %s\n", id)
	return nil
}

// AlarmImport schedules every alarm in a TOML file. It stops at the first
// alarm that fails.
func (r *Runner) AlarmImport(ctx context.Context, path string) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}

	var file alarmFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return werrors.Wrap(werrors.EUsage, fmt.Sprintf("read %s", path), err)
	}
	if len(file.Alarms) == 0 {
		return werrors.Newf(werrors.EUsage, "%s defines no [[alarm]] tables", path)
	}

	for i, imported := range file.Alarms {
		a, err := imported.toAlarm(rt.cfg())
		if err != nil {
			return werrors.Wrap(werrors.EUsage, fmt.Sprintf("alarm #%d", i+1), err)
		}
		id, err := rt.bridge.Schedule(ctx, a)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "imported %s\n", id)
	}
	return nil
}

// AlarmExport writes every alarm as TOML to path, or stdout when empty.
func (r *Runner) AlarmExport(ctx context.Context, path string) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}
	alarms, err := rt.bridge.Alarms(ctx)
	if err != nil {
		return err
	}

	out := exportFile{Alarms: alarms}
	if strings.TrimSpace(path) == "" {
		return encodeTOML(r.Stdout, out)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return werrors.Wrap(werrors.EUsage, fmt.Sprintf("create %s", path), err)
	}
	if err := encodeTOML(f, out); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return werrors.Wrap(werrors.EInternal, fmt.Sprintf("close %s", path), err)
	}
	fmt.Fprintf(r.Stdout, "exported %d alarm(s) to %s\n", len(alarms), path)
	return nil
}

type exportFile struct {
	Alarms []model.Alarm `toml:"alarm"`
}

func encodeTOML(w io.Writer, v exportFile) error {
	if err := toml.NewEncoder(w).Encode(v); err != nil {
		return werrors.Wrap(werrors.EInternal, "encode toml", err)
	}
	return nil
}

// newAlarm returns an alarm carrying the configured defaults.
func newAlarm(cfg config.Config) model.Alarm {
	return model.Alarm{
		MaxSnoozes:          cfg.AlarmDefaults.MaxSnoozes,
		SnoozeMinutes:       cfg.AlarmDefaults.SnoozeMinutes,
		RequireAffirmations: true,
		RequireGoals:        true,
		Enabled:             true,
	}
}

func (in importedAlarm) toAlarm(cfg config.Config) (model.Alarm, error) {
	a := newAlarm(cfg)
	a.ID = strings.TrimSpace(in.ID)
	a.Label = strings.TrimSpace(in.Label)
	a.Weekdays = in.Weekdays

	switch {
	case strings.TrimSpace(in.At) != "":
		hour, minute, err := alarm.ParseClock(in.At)
		if err != nil {
			return model.Alarm{}, err
		}
		a.Hour, a.Minute = hour, minute
	case in.Hour != nil:
		a.Hour = *in.Hour
		if in.Minute != nil {
			a.Minute = *in.Minute
		}
	default:
		return model.Alarm{}, fmt.Errorf("alarm needs at or hour")
	}

	setInt(&a.MaxSnoozes, in.MaxSnoozes)
	setInt(&a.SnoozeMinutes, in.SnoozeMinutes)
	setBool(&a.RequireAffirmations, in.RequireAffirmations)
	setBool(&a.RequireGoals, in.RequireGoals)
	setBool(&a.RandomChallenge, in.RandomChallenge)
	setBool(&a.Enabled, in.Enabled)
	return a, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func alarmViews(alarms []model.Alarm, records []model.ScheduledRecord) []alarmView {
	byID := make(map[string]model.ScheduledRecord, len(records))
	for _, record := range records {
		byID[record.AlarmID] = record
	}

	views := make([]alarmView, 0, len(alarms))
	for _, a := range alarms {
		view := alarmView{
			ID:            a.ID,
			Label:         a.Label,
			Time:          fmt.Sprintf("%02d:%02d", a.Hour, a.Minute),
			Days:          alarm.FormatWeekdays(a.Weekdays),
			Enabled:       a.Enabled,
			MaxSnoozes:    a.MaxSnoozes,
			SnoozeMinutes: a.SnoozeMinutes,
			Phases:        phaseNames(a),
		}
		if record, ok := byID[a.ID]; ok {
			fireAt := record.FireAt
			view.NextFire = &fireAt
			view.Snoozed = record.Snooze
		}
		views = append(views, view)
	}
	return views
}

func phaseNames(a model.Alarm) []string {
	phases := []string{}
	if a.RequireAffirmations {
		phases = append(phases, "affirmations")
	}
	if a.RequireGoals {
		phases = append(phases, "goals")
	}
	if a.RandomChallenge {
		phases = append(phases, "challenge")
	}
	return phases
}

func writeAlarmTable(w io.Writer, views []alarmView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "no alarms")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tDAYS\tLABEL\tPHASES\tSNOOZE\tNEXT")
	for _, v := range views {
		next := "-"
		switch {
		case !v.Enabled:
			next = "disabled"
		case v.NextFire != nil:
			next = v.NextFire.Local().Format("Mon Jan 2 15:04")
			if v.Snoozed {
				next += " (snooze)"
			}
		}
		phases := strings.Join(v.Phases, ",")
		if phases == "" {
			phases = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dx%dm\t%s\n",
			v.ID, v.Time, v.Days, v.Label, phases, v.MaxSnoozes, v.SnoozeMinutes, next)
	}
	return tw.Flush()
}
