package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Verify: VerifyConfig{
			MinSimilarity: 0.72,
			Language:      "en-US",
			UserKey:       "local",
		},
		AntiCheat: AntiCheatConfig{
			LowEnergyDB:        -30,
			MaxFlatness:        0.85,
			MinProsodyVariance: 0.1,
			MinFrameDeltaDB:    10,
			MicLoopZCRLow:      0.3,
			MicLoopZCRHigh:     0.4,
			HistorySize:        7,
			HistoryCacheMB:     1,
		},
		Speech: SpeechConfig{
			Model:   "whisper-1",
			Timeout: 30 * time.Second,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Indicator: IndicatorConfig{
			Enable:      true,
			SoundEnable: true,
			AppName:     "wakeproof",
			RingSeconds: 60,
		},
		Platform: PlatformConfig{Backend: "systemd"},
		Metrics:  MetricsConfig{Address: "127.0.0.1:9464"},
		AlarmDefaults: AlarmDefaultsConfig{
			MaxSnoozes:    3,
			SnoozeMinutes: 9,
		},
	}
}
