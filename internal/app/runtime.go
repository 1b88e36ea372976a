package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rbright/wakeproof/internal/alarm"
	"github.com/rbright/wakeproof/internal/anticheat"
	"github.com/rbright/wakeproof/internal/audio"
	"github.com/rbright/wakeproof/internal/config"
	werrors "github.com/rbright/wakeproof/internal/errors"
	"github.com/rbright/wakeproof/internal/features"
	"github.com/rbright/wakeproof/internal/indicator"
	"github.com/rbright/wakeproof/internal/logging"
	"github.com/rbright/wakeproof/internal/platform"
	"github.com/rbright/wakeproof/internal/session"
	"github.com/rbright/wakeproof/internal/speech"
	"github.com/rbright/wakeproof/internal/store"
)

// runtime holds the collaborators shared by every handler of one invocation.
type runtime struct {
	loaded   config.Loaded
	logs     logging.Runtime
	logger   zerolog.Logger
	store    *store.Store
	platform platform.Platform
	gate     *platform.StoreGate
	bridge   *alarm.Bridge
}

// open loads config, logging, and the state store once per invocation.
func (r *Runner) open(ctx context.Context) (*runtime, error) {
	if r.rt != nil {
		return r.rt, nil
	}

	loaded, err := config.Load(r.globals.ConfigPath)
	if err != nil {
		return nil, werrors.Wrap(werrors.EConfig, "load config", err)
	}
	if level := strings.TrimSpace(r.globals.LogLevel); level != "" {
		loaded.Config.Log.Level = level
	}

	rt := &runtime{loaded: loaded}
	if r.Logger != nil {
		rt.logger = *r.Logger
	} else {
		logs, err := logging.New(loaded.Config.Log.Level)
		if err != nil {
			return nil, werrors.Wrap(werrors.EConfig, "setup logging", err)
		}
		rt.logs = logs
		rt.logger = logs.Logger
	}
	for _, w := range loaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		rt.logger.Warn().Str("message", w.Message).Msg("config warning")
	}

	dir := strings.TrimSpace(loaded.Config.Store.Dir)
	if dir == "" {
		if dir, err = store.ResolveDir(); err != nil {
			rt.close()
			return nil, werrors.Wrap(werrors.EStore, "resolve state dir", err)
		}
	}
	if rt.store, err = store.Open(dir); err != nil {
		rt.close()
		return nil, werrors.Wrap(werrors.EStore, "open state store", err)
	}

	rt.platform = r.Platform
	if rt.platform == nil {
		switch loaded.Config.Platform.Backend {
		case "memory":
			rt.platform = platform.NewMemory()
		default:
			rt.platform = platform.NewSystemd(loaded.Config.Platform.Binary, rt.logger)
		}
	}
	rt.gate = platform.NewStoreGate(rt.store, r.Prompt)
	rt.bridge = alarm.NewBridge(rt.store, rt.platform, rt.gate, rt.logger)
	if r.Now != nil {
		rt.bridge.WithClock(r.Now)
	}

	rt.logger.Debug().
		Str("config", loaded.Path).
		Str("log", rt.logs.Path).
		Str("state", rt.store.Path()).
		Str("platform", rt.platform.Name()).
		Msg("runtime ready")

	r.rt = rt
	return rt, nil
}

func (rt *runtime) close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	_ = rt.logs.Close()
}

func (rt *runtime) cfg() config.Config {
	return rt.loaded.Config
}

// sessionConfig maps configuration onto the verification policy.
func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		MinSimilarity: cfg.Verify.MinSimilarity,
		Language:      cfg.Verify.Language,
		UserKey:       cfg.Verify.UserKey,
		Thresholds: anticheat.Thresholds{
			LowEnergyDB: cfg.AntiCheat.LowEnergyDB,
			MaxFlatness: cfg.AntiCheat.MaxFlatness,
			MicLoopLow:  cfg.AntiCheat.MicLoopZCRLow,
			MicLoopHigh: cfg.AntiCheat.MicLoopZCRHigh,
		},
		Prosody: features.ProsodyOptions{
			MinVariance:  cfg.AntiCheat.MinProsodyVariance,
			MinFrameJump: cfg.AntiCheat.MinFrameDeltaDB,
		},
		Lines: session.Lines{
			Affirmations: cfg.Lines.Affirmations,
			Goals:        cfg.Lines.Goals,
		},
		DefaultMaxSnoozes:    cfg.AlarmDefaults.MaxSnoozes,
		DefaultSnoozeMinutes: cfg.AlarmDefaults.SnoozeMinutes,
	}
}

// engine returns the injected engine or builds the HTTP engine over the
// selected capture device.
func (r *Runner) engine(ctx context.Context, rt *runtime) (speech.Engine, error) {
	if r.Engine != nil {
		return r.Engine, nil
	}
	cfg := rt.cfg()
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return nil, werrors.Wrap(werrors.ERecognitionUnavailable, "select audio input", err)
	}
	if selection.Warning != "" {
		rt.logger.Warn().Str("device", selection.Device.ID).Msg(selection.Warning)
	}
	return speech.NewHTTPEngine(speech.HTTPConfig{
		Endpoint: cfg.Speech.Endpoint,
		APIKey:   cfg.Speech.APIKey,
		Model:    cfg.Speech.Model,
		Timeout:  cfg.Speech.Timeout,
		DebugDir: cfg.Speech.DebugDir,
	}, audio.NewRecorder(selection.Device), rt.logger), nil
}

func (r *Runner) indicator(rt *runtime) session.Indicator {
	if r.Indicator != nil {
		return r.Indicator
	}
	return indicator.NewDesktop(rt.cfg().Indicator, rt.logger)
}

func history(cfg config.Config, logger zerolog.Logger) *anticheat.History {
	return anticheat.NewHistory(cfg.AntiCheat.HistorySize, cfg.AntiCheat.HistoryCacheMB*1024*1024, logger)
}
