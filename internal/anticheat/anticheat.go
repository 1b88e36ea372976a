// Package anticheat classifies recording attempts that look replayed or looped.
// The rules are best-effort signals, not attestation.
package anticheat

import (
	"github.com/rbright/wakeproof/internal/features"
)

// Thresholds are the tunable decision boundaries for Analyze.
type Thresholds struct {
	LowEnergyDB float64
	MaxFlatness float64
	MicLoopLow  float64
	MicLoopHigh float64
}

// DefaultThresholds returns the stock heuristic constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowEnergyDB: -30,
		MaxFlatness: 0.85,
		MicLoopLow:  0.3,
		MicLoopHigh: 0.4,
	}
}

// Flags are the independent heuristic verdicts for one attempt.
type Flags struct {
	Playback  bool `json:"playback"`
	LowEnergy bool `json:"low_energy"`
	MicLoop   bool `json:"mic_loop"`
}

// Rejected reports whether the attempt must be redone before scoring.
func (f Flags) Rejected() bool {
	return f.Playback || f.MicLoop
}

// Names lists the raised flags in a stable order.
func (f Flags) Names() []string {
	var names []string
	if f.Playback {
		names = append(names, "playback")
	}
	if f.LowEnergy {
		names = append(names, "low_energy")
	}
	if f.MicLoop {
		names = append(names, "mic_loop")
	}
	return names
}

// Analyze applies each rule independently.
func Analyze(f features.Features, t Thresholds) Flags {
	return Flags{
		LowEnergy: f.RMSEnergyDB < t.LowEnergyDB,
		Playback:  f.SpectralFlatness > t.MaxFlatness || !f.HumanProsody,
		MicLoop:   f.ZeroCrossingRate > t.MicLoopLow && f.ZeroCrossingRate < t.MicLoopHigh,
	}
}
