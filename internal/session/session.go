// Package session runs one wake-verification episode from fire to dismissal.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rbright/wakeproof/internal/anticheat"
	"github.com/rbright/wakeproof/internal/challenge"
	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/features"
	"github.com/rbright/wakeproof/internal/fsm"
	"github.com/rbright/wakeproof/internal/ipc"
	"github.com/rbright/wakeproof/internal/metrics"
	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/speech"
	"github.com/rbright/wakeproof/internal/store"
	"github.com/rbright/wakeproof/internal/textsim"
	"github.com/rbright/wakeproof/internal/transcript"
)

// Attempt outcomes reported in responses and metrics.
const (
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
	OutcomeAdvanced    = "advanced"
	OutcomePassed      = "passed"
	OutcomeEngineError = "engine_error"
	OutcomeNoAudio     = "no_audio"
)

const duplicateFlag = "duplicate_transcript"

type actionKind int

const (
	actionRecord actionKind = iota + 1
	actionStop
	actionSnooze
	actionDismiss
)

type action struct {
	kind  actionKind
	reply chan ipc.Response
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	Ring(ctx context.Context, label string, prompt string)
	ShowPrompt(context.Context, string)
	ShowRecording(context.Context)
	ShowVerifying(context.Context)
	ShowError(context.Context, string)
	CueSuccess(context.Context)
	CueRetry(context.Context)
	Silence(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) Ring(context.Context, string, string) {}
func (noopIndicator) ShowPrompt(context.Context, string)   {}
func (noopIndicator) ShowRecording(context.Context)        {}
func (noopIndicator) ShowVerifying(context.Context)        {}
func (noopIndicator) ShowError(context.Context, string)    {}
func (noopIndicator) CueSuccess(context.Context)           {}
func (noopIndicator) CueRetry(context.Context)             {}
func (noopIndicator) Silence(context.Context)              {}

// Config is the verification policy applied to every attempt.
type Config struct {
	MinSimilarity        float64
	Language             string
	UserKey              string
	Thresholds           anticheat.Thresholds
	Prosody              features.ProsodyOptions
	Lines                Lines
	DefaultMaxSnoozes    int
	DefaultSnoozeMinutes int
}

// Deps are the collaborators of a Controller. Store and Engine are required.
type Deps struct {
	Store     *store.Store
	Engine    speech.Engine
	History   *anticheat.History
	Indicator Indicator
	Metrics   metrics.Recorder
	Logger    zerolog.Logger
	Now       func() time.Time
	Challenge func(time.Time) string
}

// Result is the complete outcome returned by one Run invocation.
type Result struct {
	State      fsm.State
	Run        model.Run
	Alarm      model.Alarm
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// attempt is one recording. The collector goroutine owns assembler and err
// until done is closed.
type attempt struct {
	assembler transcript.Assembler
	err       error
	done      chan struct{}
}

// Controller drives one Alarm Run. Begin it once, then Run it while IPC
// requests arrive through Handle.
type Controller struct {
	cfg       Config
	store     *store.Store
	engine    speech.Engine
	history   *anticheat.History
	indicator Indicator
	metrics   metrics.Recorder
	logger    zerolog.Logger
	now       func() time.Time
	challenge func(time.Time) string

	mu      sync.RWMutex
	state   fsm.State
	run     model.Run
	alarm   model.Alarm
	phases  []Phase
	message string
	started time.Time

	// current is only touched by the Run goroutine.
	current  *attempt
	actions  chan action
	failures chan *attempt
	done     chan struct{}
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Store == nil {
		return nil, werrors.New(werrors.EInternal, "session requires a store")
	}
	if deps.Engine == nil {
		return nil, werrors.New(werrors.ERecognitionUnavailable, "session requires a speech engine")
	}
	if deps.History == nil {
		deps.History = anticheat.NewHistory(anticheat.DefaultHistorySize, 0, deps.Logger)
	}
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Challenge == nil {
		deps.Challenge = challenge.Daily
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = textsim.DefaultMinSimilarity
	}

	return &Controller{
		cfg:       cfg,
		store:     deps.Store,
		engine:    deps.Engine,
		history:   deps.History,
		indicator: deps.Indicator,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		challenge: deps.Challenge,
		state:     fsm.StateDormant,
		actions:   make(chan action),
		failures:  make(chan *attempt, 4),
		done:      make(chan struct{}),
	}, nil
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns copies of the current run and its alarm.
func (c *Controller) Snapshot() (model.Run, model.Alarm) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run, c.alarm
}

// Begin opens the run for a delivered payload. A run snoozed earlier for the
// same alarm is resumed so its snooze count carries over; any other run left
// open by a dead process is abandoned.
func (c *Controller) Begin(ctx context.Context, payload model.Payload) error {
	if state := c.State(); state != fsm.StateDormant {
		return werrors.Newf(werrors.ESessionInProgress, "session already in state %s", state)
	}

	now := c.now()
	word := ""
	if payload.RandomChallenge {
		word = c.challenge(now)
	}
	phases, warnings := BuildPhases(Requirements{
		Affirmations: payload.RequireAffirmations,
		Goals:        payload.RequireGoals,
		Challenge:    payload.RandomChallenge,
	}, c.cfg.Lines, word)
	for _, warning := range warnings {
		c.logger.Warn().Str("alarm_id", payload.AlarmID).Msg(warning)
	}

	next, err := fsm.Transition(fsm.StateDormant, fsm.EventFire)
	if err != nil {
		return werrors.Wrap(werrors.EInvalidState, "fire session", err)
	}
	if len(phases) == 0 {
		if next, err = fsm.Transition(next, fsm.EventNoPhases); err != nil {
			return werrors.Wrap(werrors.EInvalidState, "complete empty session", err)
		}
	}

	var (
		run   model.Run
		alarm model.Alarm
	)
	err = c.store.Update(ctx, func(st *store.State) error {
		alarm = st.Alarms[payload.AlarmID]
		if alarm.ID == "" {
			alarm = model.Alarm{
				ID:            payload.AlarmID,
				Label:         payload.Label,
				MaxSnoozes:    c.cfg.DefaultMaxSnoozes,
				SnoozeMinutes: c.cfg.DefaultSnoozeMinutes,
			}
		}
		run = openRun(st, payload, now)
		if next == fsm.StateCompleted {
			run.Success = true
			run.Status = model.RunCompleted
		}
		st.Runs[run.ID] = run
		return nil
	})
	if err != nil {
		return werrors.Wrap(werrors.EStore, "persist run", err)
	}

	message := phasePrompt(phases, 0)
	c.mu.Lock()
	c.state = next
	c.run = run
	c.alarm = alarm
	c.phases = phases
	c.message = message
	c.started = now
	c.mu.Unlock()

	c.logger.Info().
		Str("run_id", run.ID).
		Str("alarm_id", run.AlarmID).
		Int("phases", len(phases)).
		Int("snoozes_used", run.SnoozesUsed).
		Str("challenge_word", word).
		Msg("session started")
	c.indicator.Ring(ctx, alarm.Label, message)
	return nil
}

// openRun resumes the latest snoozed run of the payload's alarm or starts a
// fresh one. Runs still open are left over from a dead owner.
func openRun(st *store.State, payload model.Payload, now time.Time) model.Run {
	var resumed *model.Run
	for id, run := range st.Runs {
		switch {
		case run.Status == model.RunOpen || run.Status == model.RunCompleted:
			run.Status = model.RunAbandoned
			run.UpdatedAt = now
			st.Runs[id] = run
		case run.Status == model.RunSnoozed && run.AlarmID == payload.AlarmID:
			if resumed == nil || run.FiredAt.After(resumed.FiredAt) {
				r := run
				resumed = &r
			}
		}
	}

	if resumed != nil {
		run := *resumed
		run.Status = model.RunOpen
		run.Token = payload.AntiCheatToken
		run.PhaseIndex = 0
		run.Success = false
		run.UpdatedAt = now
		return run
	}

	firedAt := payload.FiredAt
	if firedAt.IsZero() {
		firedAt = now
	}
	return model.Run{
		ID:        uuid.NewString(),
		AlarmID:   payload.AlarmID,
		Token:     payload.AntiCheatToken,
		FiredAt:   firedAt,
		UpdatedAt: now,
		Status:    model.RunOpen,
	}
}

// Run serves session actions until the run is dismissed or snoozed, or ctx
// ends. A run interrupted by ctx stays open in the store.
func (c *Controller) Run(ctx context.Context) Result {
	defer close(c.done)

	if c.State() == fsm.StateDormant {
		return c.finish(werrors.New(werrors.EInvalidState, "session was not started"))
	}

	for {
		if c.State().Terminal() {
			return c.finish(nil)
		}

		select {
		case <-ctx.Done():
			c.cancelAttempt(context.Background())
			return c.finish(ctx.Err())
		case att := <-c.failures:
			c.handleEngineFailure(ctx, att)
		case act := <-c.actions:
			act.reply <- c.dispatch(ctx, act.kind)
		}
	}
}

func (c *Controller) finish(err error) Result {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	c.indicator.Silence(cleanupCtx)

	c.mu.RLock()
	result := Result{
		State:      c.state,
		Run:        c.run,
		Alarm:      c.alarm,
		Err:        err,
		StartedAt:  c.started,
		FinishedAt: c.now(),
	}
	c.mu.RUnlock()

	c.metrics.SessionEnded(string(result.State))
	event := c.logger.Info()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.Str("run_id", result.Run.ID).
		Str("state", string(result.State)).
		Bool("success", result.Run.Success).
		Int("attempts", result.Run.Attempts).
		Msg("session finished")
	return result
}

// Handle serves IPC commands for the active run.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.status()
	case ipc.CommandRecord:
		return c.submit(ctx, actionRecord)
	case ipc.CommandStop:
		return c.submit(ctx, actionStop)
	case ipc.CommandSnooze:
		return c.submit(ctx, actionSnooze)
	case ipc.CommandDismiss:
		return c.submit(ctx, actionDismiss)
	default:
		return c.fail(werrors.Newf(werrors.EUsage, "unknown command: %s", req.Command))
	}
}

// submit hands an action to the Run loop and waits for its reply.
func (c *Controller) submit(ctx context.Context, kind actionKind) ipc.Response {
	reply := make(chan ipc.Response, 1)
	select {
	case c.actions <- action{kind: kind, reply: reply}:
	case <-c.done:
		return c.fail(werrors.New(werrors.ENoActiveSession, "no active session"))
	case <-ctx.Done():
		return c.fail(werrors.Wrap(werrors.EInternal, "request cancelled", ctx.Err()))
	}

	select {
	case resp := <-reply:
		return resp
	case <-ctx.Done():
		return c.fail(werrors.Wrap(werrors.EInternal, "request cancelled", ctx.Err()))
	}
}

func (c *Controller) dispatch(ctx context.Context, kind actionKind) ipc.Response {
	switch kind {
	case actionRecord:
		return c.record(ctx)
	case actionStop:
		return c.stop(ctx)
	case actionSnooze:
		return c.snooze(ctx)
	case actionDismiss:
		return c.dismiss(ctx)
	default:
		return c.fail(werrors.Newf(werrors.EInternal, "unknown action %d", kind))
	}
}

func (c *Controller) record(ctx context.Context) ipc.Response {
	state := c.State()
	switch {
	case state == fsm.StateRecording || state == fsm.StateVerifying:
		return c.fail(werrors.New(werrors.ESessionInProgress, "a recording is already in progress"))
	case !state.CanRecord():
		return c.fail(werrors.Newf(werrors.EInvalidState, "cannot record from state %s", state))
	}
	next, err := fsm.Transition(state, fsm.EventRecord)
	if err != nil {
		return c.fail(werrors.Wrap(werrors.EInvalidState, "record", err))
	}

	events, err := c.engine.Start(ctx, c.cfg.Language)
	if err != nil {
		code := werrors.ERecognitionUnavailable
		if errors.Is(err, speech.ErrBusy) {
			code = werrors.ESessionInProgress
		}
		c.indicator.ShowError(ctx, msgRecognition)
		return c.fail(werrors.Wrap(code, "start recognition", err))
	}

	att := &attempt{done: make(chan struct{})}
	go c.collect(att, events)
	c.current = att

	c.setState(next, promptRecording)
	c.indicator.ShowRecording(ctx)
	return c.respond("", promptRecording)
}

// collect drains one attempt's recognizer events until the engine closes the
// channel. The first error is reported to the Run loop.
func (c *Controller) collect(att *attempt, events <-chan speech.Event) {
	defer close(att.done)
	for ev := range events {
		if ev.Err != nil {
			if att.err == nil {
				att.err = ev.Err
				select {
				case c.failures <- att:
				default:
				}
			}
			continue
		}
		att.assembler.Add(ev.Transcript, ev.IsFinal, ev.Confidence)
	}
}

// handleEngineFailure aborts the recording that reported a recognizer error.
// Failures of attempts already stopped are ignored.
func (c *Controller) handleEngineFailure(ctx context.Context, att *attempt) {
	if att != c.current || c.State() != fsm.StateRecording {
		return
	}
	c.cancelAttempt(ctx)
	c.logger.Warn().Err(att.err).Msg("recognizer failed during recording")
	c.abortAttempt(ctx, werrors.Wrap(werrors.ERecognitionUnavailable, msgRecognition, att.err), msgRecognition, OutcomeEngineError)
}

// cancelAttempt releases the microphone and waits for the collector.
func (c *Controller) cancelAttempt(ctx context.Context) {
	att := c.current
	if att == nil {
		return
	}
	if err := c.engine.Cancel(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("cancel recognition")
	}
	<-att.done
	c.current = nil
}

func (c *Controller) stop(ctx context.Context) ipc.Response {
	state := c.State()
	if state != fsm.StateRecording || c.current == nil {
		return c.fail(werrors.Newf(werrors.EInvalidState, "cannot stop from state %s", state))
	}
	verifying, err := fsm.Transition(state, fsm.EventStop)
	if err != nil {
		return c.fail(werrors.Wrap(werrors.EInvalidState, "stop", err))
	}
	c.setState(verifying, "Verifying.")
	c.indicator.ShowVerifying(ctx)

	att := c.current
	clip, stopErr := c.engine.Stop(ctx)
	<-att.done
	c.current = nil
	if stopErr == nil {
		stopErr = att.err
	}

	if stopErr != nil {
		c.logger.Warn().Err(stopErr).Msg("recognition failed")
		return c.abortAttempt(ctx, werrors.Wrap(werrors.ERecognitionUnavailable, msgRecognition, stopErr), msgRecognition, OutcomeEngineError)
	}
	if clip.Empty() {
		return c.abortAttempt(ctx, werrors.New(werrors.ENoAudioCaptured, msgNoAudio), msgNoAudio, OutcomeNoAudio)
	}
	return c.verify(ctx, clip.Samples, clip.SampleRate, att.assembler.Text())
}

// abortAttempt returns the session to the start of the current phase without
// touching the run.
func (c *Controller) abortAttempt(ctx context.Context, err error, message string, outcome string) ipc.Response {
	next, transitionErr := fsm.Transition(c.State(), fsm.EventAbort)
	if transitionErr != nil {
		return c.fail(werrors.Wrap(werrors.EInvalidState, "abort attempt", transitionErr))
	}
	c.metrics.AttemptResult(string(c.activePhase().Kind), outcome)
	c.setState(next, message)
	c.indicator.ShowError(ctx, message)
	return c.fail(err)
}

func (c *Controller) verify(ctx context.Context, samples []int16, sampleRate int, text string) ipc.Response {
	phase := c.activePhase()
	kind := string(phase.Kind)
	now := c.now()

	feats := features.Extract(features.FromPCM16(samples), sampleRate, c.cfg.Prosody)
	flags := anticheat.Analyze(feats, c.cfg.Thresholds)
	raised := flags.Names()
	if text != "" && c.history.CheckDuplicate(c.cfg.UserKey, text) {
		raised = append(raised, duplicateFlag)
	}
	for _, flag := range raised {
		c.metrics.CheatFlag(flag)
	}
	c.logger.Debug().
		Float64("rms_energy_db", feats.RMSEnergyDB).
		Float64("spectral_flatness", feats.SpectralFlatness).
		Float64("zero_crossing_rate", feats.ZeroCrossingRate).
		Bool("human_prosody", feats.HumanProsody).
		Strs("flags", raised).
		Msg("attempt features")

	run, _ := c.Snapshot()
	run.Attempts++
	run.UpdatedAt = now
	run.CheatFlags = mergeFlags(run.CheatFlags, raised)
	if text != "" {
		run.Transcripts = append(slices.Clone(run.Transcripts), text)
	}

	if flags.Rejected() {
		run.LastDetail = msgPlayback
		next, err := fsm.Transition(fsm.StateVerifying, fsm.EventReject)
		if err != nil {
			return c.fail(werrors.Wrap(werrors.EInvalidState, "reject attempt", err))
		}
		if err := c.commit(ctx, next, run, msgPlayback, nil); err != nil {
			return c.abortAttempt(ctx, err, msgRecognition, OutcomeEngineError)
		}
		c.metrics.AttemptResult(kind, OutcomeRejected)
		c.indicator.ShowError(ctx, msgPlayback)

		resp := c.respond(OutcomeRejected, msgPlayback)
		resp.Code = string(werrors.EAntiCheatRejected)
		resp.Details = map[string]string{"flags": strings.Join(raised, ",")}
		return resp
	}

	result := textsim.Verify(phase.Request(text, c.cfg.MinSimilarity))
	scores := lineScores(phase, result)
	run.Scores = append(slices.Clone(run.Scores), scores...)
	for _, score := range scores {
		c.metrics.SimilarityObserved(kind, score.Score)
	}
	run.LastDetail = result.Details

	if !result.Passed {
		return c.failPhase(ctx, run, result, flags)
	}

	run.PhaseIndex++
	if run.PhaseIndex < len(c.phases) {
		next, err := fsm.Transition(fsm.StateVerifying, fsm.EventAdvance)
		if err != nil {
			return c.fail(werrors.Wrap(werrors.EInvalidState, "advance phase", err))
		}
		message := phasePrompt(c.phases, run.PhaseIndex)
		if err := c.commit(ctx, next, run, message, nil); err != nil {
			return c.abortAttempt(ctx, err, msgRecognition, OutcomeEngineError)
		}
		c.metrics.AttemptResult(kind, OutcomeAdvanced)
		c.indicator.ShowPrompt(ctx, message)
		return c.respond(OutcomeAdvanced, message)
	}

	next, err := fsm.Transition(fsm.StateVerifying, fsm.EventPass)
	if err != nil {
		return c.fail(werrors.Wrap(werrors.EInvalidState, "pass session", err))
	}
	run.Success = true
	run.Status = model.RunCompleted
	var streak model.Streak
	err = c.commit(ctx, next, run, promptSuccess, func(st *store.State) {
		if updated, changed := UpdateStreak(st.Streak, now); changed {
			st.Streak = updated
		}
		streak = st.Streak
	})
	if err != nil {
		return c.abortAttempt(ctx, err, msgRecognition, OutcomeEngineError)
	}
	c.metrics.AttemptResult(kind, OutcomePassed)
	c.indicator.CueSuccess(ctx)
	c.indicator.ShowPrompt(ctx, promptSuccess)

	resp := c.respond(OutcomePassed, promptSuccess)
	resp.Details = map[string]string{
		"streak_current": strconv.Itoa(streak.Current),
		"streak_best":    strconv.Itoa(streak.Best),
	}
	return resp
}

func (c *Controller) failPhase(ctx context.Context, run model.Run, result textsim.Result, flags anticheat.Flags) ipc.Response {
	next, err := fsm.Transition(fsm.StateVerifying, fsm.EventFail)
	if err != nil {
		return c.fail(werrors.Wrap(werrors.EInvalidState, "fail phase", err))
	}

	message := promptRetry
	switch {
	case flags.LowEnergy:
		message = msgLowEnergy
	case result.AffirmationsPassed && result.GoalsPassed && !result.ChallengePassed:
		message = msgChallenge
	}
	if err := c.commit(ctx, next, run, message, nil); err != nil {
		return c.abortAttempt(ctx, err, msgRecognition, OutcomeEngineError)
	}
	c.metrics.AttemptResult(string(c.activePhase().Kind), OutcomeFailed)
	c.indicator.CueRetry(ctx)
	c.indicator.ShowError(ctx, message)

	failed := append(slices.Clone(result.FailedAffirmations), result.FailedGoals...)
	resp := c.respond(OutcomeFailed, message)
	resp.Code = string(werrors.ESimilarityBelowThreshold)
	resp.Details = map[string]string{
		"detail":        result.Details,
		"overall_score": strconv.FormatFloat(result.Scores.Overall, 'f', 2, 64),
	}
	if len(failed) > 0 {
		resp.Details["failed_lines"] = strings.Join(failed, "; ")
	}
	return resp
}

func (c *Controller) snooze(ctx context.Context) ipc.Response {
	state := c.State()
	if state == fsm.StateDormant || state.Terminal() {
		return c.fail(werrors.Newf(werrors.EInvalidState, "cannot snooze from state %s", state))
	}

	run, alarm := c.Snapshot()
	budget := map[string]string{
		"snoozes_used": strconv.Itoa(run.SnoozesUsed),
		"max_snoozes":  strconv.Itoa(alarm.MaxSnoozes),
	}
	if run.SnoozesUsed >= alarm.MaxSnoozes {
		return c.fail(werrors.NewWithDetails(werrors.ESnoozeBudgetExhausted, msgSnoozeExceeded, budget))
	}

	if state == fsm.StateRecording {
		c.cancelAttempt(ctx)
	}
	next, err := fsm.Transition(state, fsm.EventSnooze)
	if err != nil {
		return c.fail(werrors.Wrap(werrors.EInvalidState, "snooze", err))
	}

	run.SnoozesUsed++
	run.Status = model.RunSnoozed
	run.UpdatedAt = c.now()
	message := fmt.Sprintf("%s Next alarm in %d minutes.", promptSnoozed, alarm.SnoozeMinutes)
	if err := c.commit(ctx, next, run, message, nil); err != nil {
		if state == fsm.StateRecording {
			c.setState(fsm.StateAwaitingPhaseStart, msgRecognition)
		}
		return c.fail(err)
	}
	c.metrics.Snoozed()

	resp := c.respond("", message)
	resp.Details = map[string]string{
		"snoozes_used": strconv.Itoa(run.SnoozesUsed),
		"max_snoozes":  strconv.Itoa(alarm.MaxSnoozes),
	}
	return resp
}

func (c *Controller) dismiss(ctx context.Context) ipc.Response {
	state := c.State()
	if state != fsm.StateCompleted {
		return c.fail(werrors.Newf(werrors.EInvalidState, "cannot dismiss from state %s: verification has not passed", state))
	}
	next, err := fsm.Transition(state, fsm.EventDismiss)
	if err != nil {
		return c.fail(werrors.Wrap(werrors.EInvalidState, "dismiss", err))
	}

	run, _ := c.Snapshot()
	now := c.now()
	run.Status = model.RunDismissed
	run.DismissedAt = &now
	run.UpdatedAt = now
	if err := c.commit(ctx, next, run, promptDismissed, nil); err != nil {
		return c.fail(err)
	}
	return c.respond("", promptDismissed)
}

// commit persists run before exposing the new state.
func (c *Controller) commit(ctx context.Context, next fsm.State, run model.Run, message string, extra func(*store.State)) error {
	err := c.store.Update(ctx, func(st *store.State) error {
		st.Runs[run.ID] = run
		if extra != nil {
			extra(st)
		}
		return nil
	})
	if err != nil {
		return werrors.Wrap(werrors.EStore, "persist run", err)
	}

	c.mu.Lock()
	c.state = next
	c.run = run
	c.message = message
	c.mu.Unlock()
	return nil
}

func (c *Controller) setState(next fsm.State, message string) {
	c.mu.Lock()
	c.state = next
	c.message = message
	c.mu.Unlock()
}

func (c *Controller) activePhase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phaseLocked()
}

func (c *Controller) phaseLocked() Phase {
	if c.run.PhaseIndex < 0 || c.run.PhaseIndex >= len(c.phases) {
		return Phase{}
	}
	return c.phases[c.run.PhaseIndex]
}

func (c *Controller) status() ipc.Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resp := ipc.Response{
		OK:      true,
		State:   string(c.state),
		Phase:   string(c.phaseLocked().Kind),
		Message: c.message,
	}
	if c.run.ID != "" {
		resp.Details = map[string]string{
			"run_id":       c.run.ID,
			"alarm_id":     c.run.AlarmID,
			"phase_index":  fmt.Sprintf("%d/%d", min(c.run.PhaseIndex+1, len(c.phases)), len(c.phases)),
			"attempts":     strconv.Itoa(c.run.Attempts),
			"snoozes_used": strconv.Itoa(c.run.SnoozesUsed),
			"max_snoozes":  strconv.Itoa(c.alarm.MaxSnoozes),
		}
	}
	return resp
}

func (c *Controller) respond(outcome, message string) ipc.Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ipc.Response{
		OK:      true,
		State:   string(c.state),
		Phase:   string(c.phaseLocked().Kind),
		Outcome: outcome,
		Message: message,
	}
}

func (c *Controller) fail(err error) ipc.Response {
	resp := ipc.ErrorResponse(err)
	c.mu.RLock()
	resp.State = string(c.state)
	resp.Phase = string(c.phaseLocked().Kind)
	c.mu.RUnlock()
	return resp
}

func lineScores(phase Phase, result textsim.Result) []model.LineScore {
	var lines []textsim.LineScore
	lines = append(lines, result.Scores.Affirmations...)
	lines = append(lines, result.Scores.Goals...)

	scores := make([]model.LineScore, 0, len(lines)+1)
	for _, line := range lines {
		scores = append(scores, model.LineScore{Phase: string(phase.Kind), Line: line.Line, Score: line.Score})
	}
	if result.Scores.Challenge != nil {
		scores = append(scores, model.LineScore{
			Phase: string(phase.Kind),
			Line:  "challenge: " + phase.ChallengeWord,
			Score: *result.Scores.Challenge,
		})
	}
	return scores
}

func mergeFlags(existing []string, raised []string) []string {
	merged := slices.Clone(existing)
	for _, flag := range raised {
		if !slices.Contains(merged, flag) {
			merged = append(merged, flag)
		}
	}
	return merged
}
