package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/ipc"
)

const sessionSlack = 5 * time.Second

// SessionCommand forwards one control command to the daemon owning the
// ringing alarm and prints its response.
func (r *Runner) SessionCommand(ctx context.Context, command string) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		if command == ipc.CommandStatus {
			fmt.Fprintln(r.Stdout, "idle")
			return nil
		}
		return werrors.Wrap(werrors.ENoActiveSession, "no daemon socket", err)
	}

	timeout := rt.cfg().Speech.Timeout + sessionSlack
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, timeout)
	if err != nil {
		if ipc.Unreachable(err) {
			if command == ipc.CommandStatus {
				fmt.Fprintln(r.Stdout, "idle")
				return nil
			}
			return werrors.New(werrors.ENoActiveSession, "no alarm is ringing")
		}
		return werrors.Wrap(werrors.EInternal, "daemon request", err)
	}
	if err := resp.Err(); err != nil {
		return err
	}

	printResponse(r, resp)
	if resp.Code != "" {
		return werrors.NewWithDetails(werrors.Code(resp.Code), resp.Message, resp.Details)
	}
	return nil
}

func printResponse(r *Runner, resp ipc.Response) {
	line := resp.State
	if line == "" {
		line = "idle"
	}
	if resp.Phase != "" {
		line += " phase=" + resp.Phase
	}
	if resp.Outcome != "" {
		line += " outcome=" + resp.Outcome
	}
	fmt.Fprintln(r.Stdout, line)
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}

	keys := make([]string, 0, len(resp.Details))
	for k := range resp.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(r.Stdout, "  %s=%s\n", k, strings.TrimSpace(resp.Details[k]))
	}
}
