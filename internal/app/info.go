package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	json "github.com/goccy/go-json"

	"github.com/rbright/wakeproof/internal/audio"
	"github.com/rbright/wakeproof/internal/doctor"
	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/platform"
	"github.com/rbright/wakeproof/internal/store"
	"github.com/rbright/wakeproof/internal/version"
)

// Permission inspects or changes the scheduling permission.
func (r *Runner) Permission(ctx context.Context, action string) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}

	switch action {
	case "status":
	case "request":
		granted, err := rt.gate.Request(ctx)
		if err != nil {
			if errors.Is(err, platform.ErrNotInteractive) || errors.Is(err, platform.ErrPromptAborted) {
				return werrors.Wrap(werrors.EPermissionDenied, "permission request", err)
			}
			return werrors.Wrap(werrors.EStore, "permission request", err)
		}
		if !granted {
			fmt.Fprintln(r.Stdout, model.PermissionDenied)
			return werrors.New(werrors.EPermissionDenied, "scheduling permission denied; run `wakeproof permission reset` to ask again")
		}
	case "reset":
		if err := rt.gate.Reset(ctx); err != nil {
			return werrors.Wrap(werrors.EStore, "reset permission", err)
		}
	default:
		return werrors.Newf(werrors.EUsage, "unknown permission action %q", action)
	}

	status, err := rt.gate.Status(ctx)
	if err != nil {
		return werrors.Wrap(werrors.EStore, "read permission", err)
	}
	fmt.Fprintln(r.Stdout, status)
	return nil
}

// Streak prints the consecutive-day completion streak.
func (r *Runner) Streak(ctx context.Context) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}

	var streak model.Streak
	if err := rt.store.View(ctx, func(state store.State) error {
		streak = state.Streak
		return nil
	}); err != nil {
		return werrors.Wrap(werrors.EStore, "read streak", err)
	}

	last := streak.LastCompletionDate
	if last == "" {
		last = "never"
	}
	fmt.Fprintf(r.Stdout, "current=%d best=%d last=%s\n", streak.Current, streak.Best, last)
	return nil
}

// Runs prints the most recent runs, newest first.
func (r *Runner) Runs(ctx context.Context, limit int) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}

	var runs []model.Run
	if err := rt.store.View(ctx, func(state store.State) error {
		runs = make([]model.Run, 0, len(state.Runs))
		for _, run := range state.Runs {
			runs = append(runs, run)
		}
		return nil
	}); err != nil {
		return werrors.Wrap(werrors.EStore, "read runs", err)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].FiredAt.After(runs[j].FiredAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}

	if len(runs) == 0 {
		fmt.Fprintln(r.Stdout, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIRED\tALARM\tSTATUS\tPHASE\tATTEMPTS\tSNOOZES\tFLAGS")
	for _, run := range runs {
		flags := "-"
		if len(run.CheatFlags) > 0 {
			flags = fmt.Sprint(run.CheatFlags)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.FiredAt.Local().Format("2006-01-02 15:04"),
			run.AlarmID,
			run.Status,
			run.PhaseIndex,
			run.Attempts,
			run.SnoozesUsed,
			flags,
		)
	}
	return tw.Flush()
}

// Devices lists capture sources; `*` marks the server default.
func (r *Runner) Devices(ctx context.Context) error {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		return werrors.Wrap(werrors.ERecognitionUnavailable, "list audio devices", err)
	}
	if len(devices) == 0 {
		return werrors.New(werrors.ERecognitionUnavailable, "no audio devices found")
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}
	return nil
}

// Doctor prints the readiness report. A failing check exits non-zero.
func (r *Runner) Doctor(ctx context.Context) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}

	report := doctor.Run(ctx, rt.loaded, doctor.Deps{
		StorePath: rt.store.Path(),
		Platform:  rt.platform,
		Gate:      rt.gate,
	})
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return werrors.New(werrors.EConfig, "doctor found failing checks")
	}
	return nil
}

// Version prints build metadata.
func (r *Runner) Version(asJSON bool) error {
	if !asJSON {
		fmt.Fprintln(r.Stdout, version.String())
		return nil
	}
	data, err := json.MarshalIndent(version.Get(), "", "  ")
	if err != nil {
		return werrors.Wrap(werrors.EInternal, "encode version", err)
	}
	fmt.Fprintln(r.Stdout, string(data))
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
