package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/wakeproof/internal/challenge"
	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/events"
	"github.com/rbright/wakeproof/internal/fsm"
	"github.com/rbright/wakeproof/internal/ipc"
	"github.com/rbright/wakeproof/internal/metrics"
	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/session"
)

const (
	socketProbeTimeout = 180 * time.Millisecond
	socketRetries      = 8
	metricsShutdown    = 2 * time.Second
)

// daemon owns the socket and runs one verification session per delivered payload.
type daemon struct {
	rt        *runtime
	channel   *events.Channel
	deps      session.Deps
	cfg       session.Config
	logger    zerolog.Logger
	startedAt time.Time
	queue     *payloadQueue

	mu      sync.Mutex
	current *session.Controller
}

// Daemon acquires the runtime socket and serves until ctx ends, or after
// the first session when once is set.
func (r *Runner) Daemon(ctx context.Context, once bool) error {
	rt, err := r.open(ctx)
	if err != nil {
		return err
	}
	cfg := rt.cfg()

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return werrors.Wrap(werrors.EConfig, "resolve socket path", err)
	}
	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: socketProbeTimeout,
		Retries:      socketRetries,
		OnStale: func(_ context.Context, path string) {
			rt.logger.Warn().Str("socket", path).Msg("removed stale daemon socket")
		},
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			return werrors.Wrap(werrors.ESessionInProgress, "cannot start daemon", err)
		}
		return werrors.Wrap(werrors.EInternal, "acquire socket", err)
	}
	defer func() { _ = os.Remove(socketPath) }()

	engine, err := r.engine(ctx, rt)
	if err != nil {
		_ = listener.Close()
		return err
	}

	registry := metrics.NewRegistry()
	recorder := metrics.New(cfg.Metrics.Enable, registry)

	d := &daemon{
		rt:      rt,
		channel: events.NewChannel(rt.store, rt.logger),
		deps: session.Deps{
			Store:     rt.store,
			Engine:    engine,
			History:   history(cfg, rt.logger),
			Indicator: r.indicator(rt),
			Metrics:   recorder,
			Logger:    rt.logger,
			Now:       r.now,
			Challenge: challenge.Daily,
		},
		cfg:       sessionConfig(cfg),
		logger:    rt.logger.With().Str("component", "daemon").Logger(),
		startedAt: r.now(),
		queue:     newPayloadQueue(),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := d.channel.OnFired(d.deliver)
	defer sub.Close()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return ipc.Serve(gctx, listener, d)
	})
	g.Go(func() error {
		return d.channel.Watch(gctx)
	})
	g.Go(func() error {
		d.loop(gctx, once, cancel)
		return nil
	})
	if cfg.Metrics.Enable {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Address, metrics.Handler(registry), d.logger)
		})
	}

	d.logger.Info().
		Str("socket", socketPath).
		Bool("once", once).
		Bool("metrics", cfg.Metrics.Enable).
		Msg("daemon started")
	fmt.Fprintf(r.Stdout, "wakeproof daemon listening on %s\n", socketPath)

	err = g.Wait()
	d.logger.Info().Msg("daemon stopped")
	if err != nil {
		return werrors.Wrap(werrors.EInternal, "daemon failed", err)
	}
	return nil
}

// Handle routes IPC requests to the active session.
func (d *daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	if req.Command == ipc.CommandFired {
		delivered, err := d.channel.Drain(ctx)
		if err != nil {
			return ipc.ErrorResponse(werrors.Wrap(werrors.EStore, "drain mailbox", err))
		}
		if !delivered {
			return ipc.Response{OK: true, Message: "nothing pending"}
		}
		return ipc.Response{OK: true, Message: "delivered"}
	}

	ctrl := d.active()
	if ctrl == nil {
		if req.Command == ipc.CommandStatus {
			return ipc.Response{OK: true, State: "idle"}
		}
		return ipc.ErrorResponse(werrors.New(werrors.ENoActiveSession, "no alarm is ringing"))
	}
	return ctrl.Handle(ctx, req)
}

// deliver runs under the channel lock and must not block.
func (d *daemon) deliver(_ context.Context, payload model.Payload) {
	path := metrics.DeliveryLive
	if payload.FiredAt.Before(d.startedAt) {
		path = metrics.DeliveryPending
	}
	d.deps.Metrics.AlarmFired()
	d.deps.Metrics.PayloadDelivered(path)

	if n := d.queue.push(payload); n > 1 {
		d.logger.Info().Str("alarm_id", payload.AlarmID).Int("queued", n).Msg("payload queued behind active session")
	}
}

func (d *daemon) loop(ctx context.Context, once bool, stop context.CancelFunc) {
	for {
		payload, ok := d.queue.pop(ctx)
		if !ok {
			return
		}
		d.runSession(ctx, payload)
		if once {
			stop()
			return
		}
	}
}

// payloadQueue is an unbounded FIFO between the mailbox listener and the
// session loop. push never blocks.
type payloadQueue struct {
	mu    sync.Mutex
	items []model.Payload
	ready chan struct{}
}

func newPayloadQueue() *payloadQueue {
	return &payloadQueue{ready: make(chan struct{}, 1)}
}

// push appends payload and returns the queue length.
func (q *payloadQueue) push(payload model.Payload) int {
	q.mu.Lock()
	q.items = append(q.items, payload)
	n := len(q.items)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return n
}

// pop waits for the oldest payload. It reports false once ctx ends.
func (q *payloadQueue) pop(ctx context.Context) (model.Payload, bool) {
	for {
		if ctx.Err() != nil {
			return model.Payload{}, false
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			payload := q.items[0]
			q.items[0] = model.Payload{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return payload, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.Payload{}, false
		case <-q.ready:
		}
	}
}

func (d *daemon) runSession(ctx context.Context, payload model.Payload) {
	ctrl, err := session.NewController(d.cfg, d.deps)
	if err != nil {
		d.logger.Error().Err(err).Msg("create session failed")
		return
	}
	if err := ctrl.Begin(ctx, payload); err != nil {
		d.logger.Error().Err(err).Str("alarm_id", payload.AlarmID).Msg("begin session failed")
		return
	}

	d.setActive(ctrl)
	result := ctrl.Run(ctx)
	d.setActive(nil)

	if result.State == fsm.StateSnoozed {
		d.rearm(ctx, result.Alarm)
	}
}

// rearm schedules the one-shot snooze trigger for alarm.
func (d *daemon) rearm(ctx context.Context, alarm model.Alarm) {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	record, err := d.rt.bridge.Snooze(ctx, alarm.ID, alarm.SnoozeLength())
	if err != nil {
		d.logger.Error().Err(err).Str("alarm_id", alarm.ID).Msg("snooze re-arm failed")
		return
	}
	d.logger.Info().Str("alarm_id", alarm.ID).Time("fire_at", record.FireAt).Msg("snooze armed")
}

func (d *daemon) active() *session.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *daemon) setActive(ctrl *session.Controller) {
	d.mu.Lock()
	d.current = ctrl
	d.mu.Unlock()
}

// serveMetrics exposes /metrics until ctx ends.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
