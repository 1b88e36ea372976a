// Package cli defines the wakeproof command tree. Every command parses its
// flags and delegates to a Handlers method.
package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	werrors "github.com/rbright/wakeproof/internal/errors"
)

// Globals are the persistent flags shared by every command.
type Globals struct {
	ConfigPath string
	LogLevel   string
}

// AlarmAddOptions describes `alarm add`.
type AlarmAddOptions struct {
	ID               string
	At               string
	Label            string
	Days             string
	MaxSnoozes       int
	SnoozeMinutes    int
	Affirmations     bool
	Goals            bool
	Challenge        bool
	Disabled         bool
	MaxSnoozesSet    bool
	SnoozeMinutesSet bool
}

// Handlers executes parsed commands.
type Handlers interface {
	SetGlobals(Globals)

	AlarmAdd(ctx context.Context, opts AlarmAddOptions) error
	AlarmList(ctx context.Context, format string) error
	AlarmCancel(ctx context.Context, id string) error
	AlarmRemove(ctx context.Context, id string) error
	AlarmImport(ctx context.Context, path string) error
	AlarmExport(ctx context.Context, path string) error

	Fire(ctx context.Context, id string) error
	Daemon(ctx context.Context, once bool) error
	SessionCommand(ctx context.Context, command string) error

	Permission(ctx context.Context, action string) error
	Streak(ctx context.Context) error
	Runs(ctx context.Context, limit int) error
	Devices(ctx context.Context) error
	Doctor(ctx context.Context) error
	Version(asJSON bool) error
}

// Session commands forwarded to the daemon.
var sessionCommands = []struct {
	name  string
	short string
}{
	{"record", "Start recording the current phase"},
	{"stop", "Stop recording and verify what was said"},
	{"snooze", "Snooze the ringing alarm if budget remains"},
	{"dismiss", "Dismiss a verified alarm"},
	{"status", "Print the active session state"},
}

var listFormats = []string{"table", "json", "yaml"}

// NewRoot builds the command tree bound to h.
func NewRoot(h Handlers) *cobra.Command {
	var globals Globals

	root := &cobra.Command{
		Use:   "wakeproof",
		Short: "Alarm clock that stays on until you prove you are awake",
		Long: `wakeproof schedules wake-capable alarms and, when one fires, keeps ringing
until you read your affirmations and goals aloud and pass verification.

Examples:
  wakeproof alarm add --at 6:45am --days weekdays --label Work
  wakeproof daemon
  wakeproof record && wakeproof stop`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			h.SetGlobals(globals)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return werrors.Wrap(werrors.EUsage, "invalid flags", err)
	})
	root.PersistentFlags().StringVar(&globals.ConfigPath, "config", "", "Config file path (default: $XDG_CONFIG_HOME/wakeproof/config.yaml)")
	root.PersistentFlags().StringVar(&globals.LogLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(newAlarmCmd(h))
	root.AddCommand(&cobra.Command{
		Use:   "fire ID",
		Short: "Deliver an elapsed alarm trigger (run by the platform timer)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.Fire(cmd.Context(), args[0])
		},
	})
	root.AddCommand(newDaemonCmd(h))
	for _, sc := range sessionCommands {
		name := sc.name
		root.AddCommand(&cobra.Command{
			Use:   name,
			Short: sc.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return h.SessionCommand(cmd.Context(), name)
			},
		})
	}
	root.AddCommand(newPermissionCmd(h))
	root.AddCommand(&cobra.Command{
		Use:   "streak",
		Short: "Show the completion streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Streak(cmd.Context())
		},
	})
	root.AddCommand(newRunsCmd(h))
	root.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List available input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Devices(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Run configuration and environment checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Doctor(cmd.Context())
		},
	})
	root.AddCommand(newVersionCmd(h))
	return root
}

func newAlarmCmd(h Handlers) *cobra.Command {
	alarm := &cobra.Command{
		Use:   "alarm",
		Short: "Manage scheduled alarms",
	}

	var add AlarmAddOptions
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create or replace an alarm and schedule its next trigger",
		Long: `Create or replace an alarm and schedule its next trigger.

Examples:
  wakeproof alarm add --at 06:45
  wakeproof alarm add --at "7:30am" --days mon,wed,fri --label Gym --challenge
  wakeproof alarm add --id work --at 6am --days weekdays --max-snoozes 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			add.MaxSnoozesSet = cmd.Flags().Changed("max-snoozes")
			add.SnoozeMinutesSet = cmd.Flags().Changed("snooze-minutes")
			return h.AlarmAdd(cmd.Context(), add)
		},
	}
	addCmd.Flags().StringVar(&add.ID, "id", "", "Alarm id (generated when empty; reusing an id replaces that alarm)")
	addCmd.Flags().StringVar(&add.At, "at", "", "Time of day, e.g. 06:45, 6:45am, \"quarter to seven\"")
	addCmd.Flags().StringVar(&add.Label, "label", "", "Label shown while ringing")
	addCmd.Flags().StringVar(&add.Days, "days", "", "Repeat days, e.g. mon,wed,fri, weekdays, weekends, daily (empty fires once)")
	addCmd.Flags().IntVar(&add.MaxSnoozes, "max-snoozes", 0, "Snooze budget per run (default from alarm_defaults)")
	addCmd.Flags().IntVar(&add.SnoozeMinutes, "snooze-minutes", 0, "Snooze length in minutes (default from alarm_defaults)")
	addCmd.Flags().BoolVar(&add.Affirmations, "affirmations", true, "Require the affirmations phase")
	addCmd.Flags().BoolVar(&add.Goals, "goals", true, "Require the goals phase")
	addCmd.Flags().BoolVar(&add.Challenge, "challenge", false, "Require the daily challenge word")
	addCmd.Flags().BoolVar(&add.Disabled, "disabled", false, "Save the alarm without scheduling it")
	_ = addCmd.MarkFlagRequired("at")

	var format string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alarms and their next trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !validFormat(format) {
				return werrors.Newf(werrors.EUsage, "unknown output format %q (want %s)", format, strings.Join(listFormats, ", "))
			}
			return h.AlarmList(cmd.Context(), format)
		},
	}
	listCmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: "+strings.Join(listFormats, ", "))

	var exportPath string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write all alarms as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.AlarmExport(cmd.Context(), exportPath)
		},
	}
	exportCmd.Flags().StringVarP(&exportPath, "file", "f", "", "Destination file (default stdout)")

	alarm.AddCommand(
		addCmd,
		listCmd,
		&cobra.Command{
			Use:   "cancel ID",
			Short: "Remove the pending trigger but keep the alarm",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return h.AlarmCancel(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:     "rm ID",
			Aliases: []string{"remove"},
			Short:   "Delete the alarm and its trigger",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return h.AlarmRemove(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Create or replace alarms from a TOML file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return h.AlarmImport(cmd.Context(), args[0])
			},
		},
		exportCmd,
	)
	return alarm
}

func newDaemonCmd(h Handlers) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Own the session socket and run verification sessions for fired alarms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Daemon(cmd.Context(), once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Exit after the first session ends")
	return cmd
}

func newPermissionCmd(h Handlers) *cobra.Command {
	permission := &cobra.Command{
		Use:   "permission",
		Short: "Inspect or change the wake alarm permission",
	}
	for _, action := range []struct{ name, short string }{
		{"status", "Print the permission status"},
		{"request", "Prompt for permission when undecided"},
		{"reset", "Return the permission to undecided"},
	} {
		name := action.name
		permission.AddCommand(&cobra.Command{
			Use:   name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return h.Permission(cmd.Context(), name)
			},
		})
	}
	return permission
}

func newRunsCmd(h Handlers) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent alarm runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return werrors.New(werrors.EUsage, "--limit must be >= 1")
			}
			return h.Runs(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	return cmd
}

func newVersionCmd(h Handlers) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return h.Version(asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build metadata as JSON")
	return cmd
}

func validFormat(format string) bool {
	for _, f := range listFormats {
		if f == format {
			return true
		}
	}
	return false
}

// cobra reports argument and command errors as plain errors.
var usagePrefixes = []string{
	"unknown command",
	"accepts ",
	"requires at least",
	"required flag(s)",
}

// IsUsageError reports whether err came from command-line parsing.
func IsUsageError(err error) bool {
	if err == nil {
		return false
	}
	if werrors.Is(err, werrors.EUsage) {
		return true
	}
	msg := err.Error()
	for _, prefix := range usagePrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
