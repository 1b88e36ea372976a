package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/ipc"
)

const (
	forwardTimeout    = 500 * time.Millisecond
	forwardMaxElapsed = 5 * time.Second
)

// newForwardBackoff returns a fresh policy; BackOff values are stateful.
func newForwardBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = forwardMaxElapsed
	return bo
}

// Fire is the platform trigger receiver. It records the fire in the store,
// then hands delivery to a running daemon or becomes the daemon itself.
func (r *Runner) Fire(ctx context.Context, id string) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}

	payload, err := rt.bridge.Fire(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Stdout, "fired %s at %s\n", payload.AlarmID, payload.FiredAt.Format(time.RFC3339))

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		rt.logger.Warn().Err(err).Msg("no socket path; payload left in mailbox")
		return nil
	}

	alive, err := ipc.Probe(ctx, socketPath, socketProbeTimeout)
	if err != nil {
		rt.logger.Warn().Err(err).Msg("probe daemon failed")
	}
	if !alive {
		rt.logger.Info().Str("alarm_id", id).Msg("no daemon running; taking ownership")
		return r.Daemon(ctx, true)
	}

	if err := forwardFired(ctx, socketPath, id); err != nil {
		// The payload stays in the mailbox; the daemon's state watcher picks it up.
		rt.logger.Warn().Err(err).Str("alarm_id", id).Msg("forward fired failed")
		fmt.Fprintf(r.Stderr, "warning: daemon did not confirm delivery: %v\n", err)
		return nil
	}
	rt.logger.Info().Str("alarm_id", id).Msg("fired forwarded to daemon")
	return nil
}

// forwardFired notifies the daemon, retrying transport failures.
func forwardFired(ctx context.Context, socketPath string, id string) error {
	return backoff.Retry(func() error {
		_, err := ipc.Call(ctx, socketPath, ipc.Request{Command: ipc.CommandFired, AlarmID: id}, forwardTimeout)
		if err == nil {
			return nil
		}
		if werrors.GetCode(err) != "" {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newForwardBackoff(), ctx))
}
