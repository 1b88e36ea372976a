// Package app implements wakeproof command handlers and the daemon owner loop.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbright/wakeproof/internal/cli"
	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/platform"
	"github.com/rbright/wakeproof/internal/session"
	"github.com/rbright/wakeproof/internal/speech"
)

// Runner executes one command invocation. The optional fields replace
// runtime collaborators in tests.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer

	Logger    *zerolog.Logger
	Prompt    platform.Prompter
	Platform  platform.Platform
	Engine    speech.Engine
	Indicator session.Indicator
	Now       func() time.Time

	globals cli.Globals
	rt      *runtime
}

// Execute runs args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := &Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute runs args against the command tree.
func (r *Runner) Execute(ctx context.Context, args []string) int {
	defer r.close()

	root := cli.NewRoot(r)
	root.SetArgs(args)
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if cli.IsUsageError(err) {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, root.UsageString())
		return 2
	}

	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	if r.rt != nil {
		r.rt.logger.Error().Err(err).Str("code", string(werrors.GetCode(err))).Strs("args", args).Msg("command failed")
	}
	return werrors.ExitCode(err)
}

// SetGlobals receives the persistent flags before any handler runs.
func (r *Runner) SetGlobals(g cli.Globals) {
	r.globals = g
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) close() {
	if r.rt != nil {
		r.rt.close()
		r.rt = nil
	}
}
