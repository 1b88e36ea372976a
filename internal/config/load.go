package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Environment variables that override file values.
var envBindings = map[string]string{
	"log.level":       "WAKEPROOF_LOG_LEVEL",
	"speech.endpoint": "WAKEPROOF_SPEECH_ENDPOINT",
	"speech.api_key":  "WAKEPROOF_SPEECH_API_KEY",
	"store.dir":       "WAKEPROOF_STATE_DIR",
	"metrics.enable":  "WAKEPROOF_METRICS_ENABLED",
}

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, decodes, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	v := viper.New()
	v.SetConfigFile(resolvedPath)
	v.SetConfigType("yaml")
	setDefaults(v, Default())
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Loaded{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	loaded := Loaded{Path: resolvedPath, Exists: true}
	if _, statErr := os.Stat(resolvedPath); statErr != nil {
		if !errors.Is(statErr, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("stat config %q: %w", resolvedPath, statErr)
		}
		loaded.Exists = false
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	} else if err := v.ReadInConfig(); err != nil {
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	if err := v.Unmarshal(&loaded.Config); err != nil {
		return Loaded{}, fmt.Errorf("decode config %q: %w", resolvedPath, err)
	}

	warnings, err := Validate(loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}
	loaded.Warnings = append(loaded.Warnings, warnings...)
	return loaded, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("store.dir", d.Store.Dir)

	v.SetDefault("verify.min_similarity", d.Verify.MinSimilarity)
	v.SetDefault("verify.language", d.Verify.Language)
	v.SetDefault("verify.user_key", d.Verify.UserKey)

	v.SetDefault("lines.affirmations", d.Lines.Affirmations)
	v.SetDefault("lines.goals", d.Lines.Goals)

	v.SetDefault("anticheat.low_energy_db", d.AntiCheat.LowEnergyDB)
	v.SetDefault("anticheat.max_flatness", d.AntiCheat.MaxFlatness)
	v.SetDefault("anticheat.min_prosody_variance", d.AntiCheat.MinProsodyVariance)
	v.SetDefault("anticheat.min_frame_delta_db", d.AntiCheat.MinFrameDeltaDB)
	v.SetDefault("anticheat.mic_loop_zcr_low", d.AntiCheat.MicLoopZCRLow)
	v.SetDefault("anticheat.mic_loop_zcr_high", d.AntiCheat.MicLoopZCRHigh)
	v.SetDefault("anticheat.history_size", d.AntiCheat.HistorySize)
	v.SetDefault("anticheat.history_cache_mb", d.AntiCheat.HistoryCacheMB)

	v.SetDefault("speech.endpoint", d.Speech.Endpoint)
	v.SetDefault("speech.api_key", d.Speech.APIKey)
	v.SetDefault("speech.model", d.Speech.Model)
	v.SetDefault("speech.grpc_health", d.Speech.GRPCHealth)
	v.SetDefault("speech.timeout", d.Speech.Timeout)
	v.SetDefault("speech.debug_dir", d.Speech.DebugDir)

	v.SetDefault("audio.input", d.Audio.Input)
	v.SetDefault("audio.fallback", d.Audio.Fallback)

	v.SetDefault("indicator.enable", d.Indicator.Enable)
	v.SetDefault("indicator.sound_enable", d.Indicator.SoundEnable)
	v.SetDefault("indicator.app_name", d.Indicator.AppName)
	v.SetDefault("indicator.ring_seconds", d.Indicator.RingSeconds)

	v.SetDefault("platform.backend", d.Platform.Backend)
	v.SetDefault("platform.binary", d.Platform.Binary)

	v.SetDefault("metrics.enable", d.Metrics.Enable)
	v.SetDefault("metrics.address", d.Metrics.Address)

	v.SetDefault("alarm_defaults.max_snoozes", d.AlarmDefaults.MaxSnoozes)
	v.SetDefault("alarm_defaults.snooze_minutes", d.AlarmDefaults.SnoozeMinutes)
}
