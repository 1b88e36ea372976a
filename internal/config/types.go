// Package config resolves, loads, validates, and defaults wakeproof configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by wakeproof.
type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	Store         StoreConfig         `mapstructure:"store"`
	Verify        VerifyConfig        `mapstructure:"verify"`
	Lines         LinesConfig         `mapstructure:"lines"`
	AntiCheat     AntiCheatConfig     `mapstructure:"anticheat"`
	Speech        SpeechConfig        `mapstructure:"speech"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Indicator     IndicatorConfig     `mapstructure:"indicator"`
	Platform      PlatformConfig      `mapstructure:"platform"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	AlarmDefaults AlarmDefaultsConfig `mapstructure:"alarm_defaults"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"required|in:debug,info,warn,error"`
}

// StoreConfig locates the state directory. Empty means $XDG_STATE_HOME/wakeproof.
type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// VerifyConfig controls similarity scoring and recognizer hints.
type VerifyConfig struct {
	MinSimilarity float64 `mapstructure:"min_similarity" validate:"min:0.01|max:1"`
	Language      string  `mapstructure:"language" validate:"required"`
	UserKey       string  `mapstructure:"user_key" validate:"required"`
}

// LinesConfig holds the lines spoken during verification.
type LinesConfig struct {
	Affirmations []string `mapstructure:"affirmations"`
	Goals        []string `mapstructure:"goals"`
}

// AntiCheatConfig holds the heuristic thresholds. They are uncalibrated
// starting points.
type AntiCheatConfig struct {
	LowEnergyDB        float64 `mapstructure:"low_energy_db"`
	MaxFlatness        float64 `mapstructure:"max_flatness" validate:"min:0|max:1"`
	MinProsodyVariance float64 `mapstructure:"min_prosody_variance" validate:"min:0"`
	MinFrameDeltaDB    float64 `mapstructure:"min_frame_delta_db" validate:"min:0"`
	MicLoopZCRLow      float64 `mapstructure:"mic_loop_zcr_low" validate:"min:0|max:1"`
	MicLoopZCRHigh     float64 `mapstructure:"mic_loop_zcr_high" validate:"min:0|max:1"`
	HistorySize        int     `mapstructure:"history_size" validate:"required|min:1"`
	HistoryCacheMB     int     `mapstructure:"history_cache_mb" validate:"required|min:1"`
}

// SpeechConfig points at the recognizer.
type SpeechConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	GRPCHealth string        `mapstructure:"grpc_health"`
	Timeout    time.Duration `mapstructure:"timeout"`
	DebugDir   string        `mapstructure:"debug_dir"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `mapstructure:"input"`
	Fallback string `mapstructure:"fallback"`
}

// IndicatorConfig controls notifications and alarm sound behavior.
type IndicatorConfig struct {
	Enable      bool   `mapstructure:"enable"`
	SoundEnable bool   `mapstructure:"sound_enable"`
	AppName     string `mapstructure:"app_name"`
	RingSeconds int    `mapstructure:"ring_seconds" validate:"min:0"`
}

// PlatformConfig selects the trigger backend.
type PlatformConfig struct {
	Backend string `mapstructure:"backend" validate:"required|in:systemd,memory"`
	Binary  string `mapstructure:"binary"`
}

type MetricsConfig struct {
	Enable  bool   `mapstructure:"enable"`
	Address string `mapstructure:"address"`
}

// AlarmDefaultsConfig seeds alarms created without explicit snooze policy.
type AlarmDefaultsConfig struct {
	MaxSnoozes    int `mapstructure:"max_snoozes" validate:"min:0"`
	SnoozeMinutes int `mapstructure:"snooze_minutes" validate:"required|min:1"`
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}
