package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrAlreadyRunning reports a responsive owner on the socket.
var ErrAlreadyRunning = errors.New("wakeproof daemon already running")

// RuntimeSocketPath returns the daemon socket path. WAKEPROOF_SOCKET wins over
// the default location under XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv("WAKEPROOF_SOCKET")); override != "" {
		return filepath.Clean(override), nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "wakeproof.sock"), nil
}

// AcquireOptions tunes socket takeover.
type AcquireOptions struct {
	// ProbeTimeout bounds the liveness check against an existing socket.
	ProbeTimeout time.Duration
	// Retries is the number of extra bind attempts after removing a stale socket.
	Retries int
	// OnStale runs after a dead owner's socket file was removed.
	OnStale func(ctx context.Context, path string)
}

// Acquire binds path as the owning listener. A socket whose owner does not
// answer a status probe is treated as stale and replaced. A socket that
// answers yields ErrAlreadyRunning; an inconclusive probe leaves the file alone.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	var listener net.Listener
	bind := func() error {
		l, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			listener = l
			return nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return backoff.Permanent(fmt.Errorf("listen unix %s: %w", path, err))
		}

		alive, probeErr := Probe(ctx, path, opts.ProbeTimeout)
		switch {
		case alive:
			return backoff.Permanent(ErrAlreadyRunning)
		case probeErr != nil:
			return backoff.Permanent(fmt.Errorf("probe existing socket %s: %w", path, probeErr))
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return backoff.Permanent(fmt.Errorf("remove stale socket %s: %w", path, err))
		}
		if opts.OnStale != nil {
			opts.OnStale(ctx, path)
		}
		return fmt.Errorf("socket %s was stale", path)
	}

	retries := max(opts.Retries, 0)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(25*time.Millisecond), uint64(retries)),
		ctx,
	)
	if err := backoff.Retry(bind, policy); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return nil, ErrAlreadyRunning
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("acquire socket %s after %d retries: %w", path, retries, err)
	}
	return listener, nil
}
