// Package indicator rings alarms and reports verification progress through
// desktop notifications and audio cues.
package indicator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rbright/wakeproof/internal/config"
	"github.com/rs/zerolog"
)

const dispatchTimeout = 400 * time.Millisecond

// Desktop is the runtime indicator used by verification sessions.
type Desktop struct {
	cfg      config.IndicatorConfig
	logger   zerolog.Logger
	messages messages
	notifier notifier
	player   player

	mu             sync.Mutex
	notificationID uint32
	label          string
	stopRing       context.CancelFunc
	ringDone       chan struct{}
	soundMu        sync.Mutex
}

// NewDesktop creates an indicator backed by busctl notifications and pulse playback.
func NewDesktop(cfg config.IndicatorConfig, logger zerolog.Logger) *Desktop {
	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = "wakeproof"
	}
	cfg.AppName = appName
	return &Desktop{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		notifier: busctlNotifier{},
		player:   pulsePlayer{appName: appName},
	}
}

// Ring raises a persistent critical notification and loops the alarm tone
// until Silence, a recording starts, or ring_seconds elapse.
func (d *Desktop) Ring(ctx context.Context, label string, prompt string) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = d.messages.alarm
	}
	d.mu.Lock()
	d.label = label
	d.mu.Unlock()

	d.notify(ctx, urgencyCritical, 0, prompt)
	if !d.cfg.SoundEnable {
		return
	}

	d.halt()
	var (
		ringCtx context.Context
		cancel  context.CancelFunc
	)
	if d.cfg.RingSeconds > 0 {
		ringCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), time.Duration(d.cfg.RingSeconds)*time.Second)
	} else {
		ringCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	done := make(chan struct{})

	d.mu.Lock()
	d.stopRing = cancel
	d.ringDone = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		d.soundMu.Lock()
		defer d.soundMu.Unlock()
		if err := d.player.Play(ringCtx, cueSamples(cueRing), true); err != nil && ringCtx.Err() == nil {
			d.log("indicator ring playback failed", err)
		}
	}()
}

// ShowPrompt replaces the notification body with the next instruction.
func (d *Desktop) ShowPrompt(ctx context.Context, text string) {
	d.notify(ctx, urgencyCritical, 0, text)
}

// ShowRecording stops the ring and emits the listening cue.
func (d *Desktop) ShowRecording(ctx context.Context) {
	d.halt()
	d.playCue(cueListen)
	d.notify(ctx, urgencyNormal, 0, d.messages.recording)
}

// ShowVerifying signals the post-capture verification state.
func (d *Desktop) ShowVerifying(ctx context.Context) {
	d.notify(ctx, urgencyNormal, 0, d.messages.verifying)
}

// ShowError displays a failure message; the alarm stays up afterwards.
func (d *Desktop) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = d.messages.errorText
	}
	d.notify(ctx, urgencyCritical, 0, text)
}

// CueSuccess emits the phase-passed cue.
func (d *Desktop) CueSuccess(context.Context) {
	d.playCue(cueSuccess)
}

// CueRetry emits the try-again cue.
func (d *Desktop) CueRetry(context.Context) {
	d.playCue(cueRetry)
}

// Silence stops the ring and closes the notification.
func (d *Desktop) Silence(ctx context.Context) {
	d.halt()
	if !d.cfg.Enable {
		return
	}

	d.mu.Lock()
	id := d.notificationID
	d.notificationID = 0
	d.mu.Unlock()
	if id == 0 {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notifier.Close(ctx, id)
	})
}

// Ringing reports whether the alarm tone is still playing.
func (d *Desktop) Ringing() bool {
	d.mu.Lock()
	done := d.ringDone
	d.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// halt cancels the ring loop and waits for playback to release the device.
func (d *Desktop) halt() {
	d.mu.Lock()
	cancel, done := d.stopRing, d.ringDone
	d.stopRing, d.ringDone = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// notify sends a replaceable notification and stores its ID.
func (d *Desktop) notify(ctx context.Context, urgency byte, timeoutMS int, body string) {
	if !d.cfg.Enable {
		return
	}
	d.mu.Lock()
	n := notification{
		appName:   d.cfg.AppName,
		replaceID: d.notificationID,
		summary:   d.label,
		body:      body,
		urgency:   urgency,
		timeoutMS: timeoutMS,
	}
	d.mu.Unlock()
	if n.summary == "" {
		n.summary = d.messages.alarm
	}

	d.run(ctx, func(ctx context.Context) error {
		id, err := d.notifier.Notify(ctx, n)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.notificationID = id
		d.mu.Unlock()
		return nil
	})
}

// run executes an indicator operation with a bounded timeout.
func (d *Desktop) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (d *Desktop) playCue(kind cueKind) {
	if !d.cfg.SoundEnable {
		return
	}
	go func() {
		d.soundMu.Lock()
		defer d.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := d.player.Play(ctx, cueSamples(kind), false); err != nil {
			d.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (d *Desktop) log(message string, err error) {
	if err == nil {
		return
	}
	d.logger.Debug().Err(err).Msg(message)
}
