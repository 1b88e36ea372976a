// Package features derives anti-spoofing signal features from captured audio.
package features

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	epsilon = 1e-10

	// SilenceDB is the energy reported for an all-zero or empty buffer.
	SilenceDB = -200.0

	frameDuration = 0.02
	minFrames     = 5
)

// Features are the per-attempt values consumed by the anti-cheat rules.
type Features struct {
	RMSEnergyDB      float64 `json:"rms_energy_db"`
	SpectralFlatness float64 `json:"spectral_flatness"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
	HumanProsody     bool    `json:"human_prosody"`
}

// ProsodyOptions tunes the human-prosody detector.
type ProsodyOptions struct {
	MinVariance  float64
	MinFrameJump float64 // dB difference between adjacent frames
}

// DefaultProsodyOptions returns the stock prosody thresholds.
func DefaultProsodyOptions() ProsodyOptions {
	return ProsodyOptions{MinVariance: 0.1, MinFrameJump: 10}
}

// Extract computes all features for samples normalized to [-1,1].
func Extract(samples []float64, sampleRate int, opts ProsodyOptions) Features {
	if len(samples) == 0 {
		return Features{RMSEnergyDB: SilenceDB}
	}
	return Features{
		RMSEnergyDB:      RMSEnergyDB(samples),
		SpectralFlatness: SpectralFlatness(MagnitudeSpectrum(samples)),
		ZeroCrossingRate: ZeroCrossingRate(samples),
		HumanProsody:     HasHumanProsody(samples, sampleRate, opts),
	}
}

// RMSEnergyDB returns 20*log10(rms+ε).
func RMSEnergyDB(samples []float64) float64 {
	if len(samples) == 0 {
		return SilenceDB
	}
	rms := math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
	return 20 * math.Log10(rms+epsilon)
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs that change sign.
// Zero counts as non-negative.
func ZeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i] >= 0) != (samples[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// MagnitudeSpectrum returns |X[k]| for k in [0, n/2) over the whole buffer.
func MagnitudeSpectrum(samples []float64) []float64 {
	n := len(samples)
	if n < 2 {
		return nil
	}
	coeffs := fourier.NewFFT(n).Coefficients(nil, samples)
	half := n / 2
	magnitudes := make([]float64, half)
	for k := 0; k < half; k++ {
		magnitudes[k] = cmplx.Abs(coeffs[k])
	}
	return magnitudes
}

// SpectralFlatness is the geometric over the arithmetic mean of a magnitude
// spectrum: near 1 for flat noise-like spectra, near 0 for tonal ones.
func SpectralFlatness(magnitudes []float64) float64 {
	if len(magnitudes) == 0 {
		return 0
	}
	arithmetic := stat.Mean(magnitudes, nil)
	if arithmetic == 0 {
		return 0
	}
	logSum := 0.0
	for _, m := range magnitudes {
		logSum += math.Log(m + epsilon)
	}
	geometric := math.Exp(logSum / float64(len(magnitudes)))
	return geometric / arithmetic
}

// HasHumanProsody splits samples into ~20ms frames and requires both varied
// frame energy and at least one abrupt jump between adjacent frames.
func HasHumanProsody(samples []float64, sampleRate int, opts ProsodyOptions) bool {
	energies := FrameEnergies(samples, sampleRate)
	if len(energies) < minFrames {
		return false
	}

	if stat.PopVariance(energies, nil) <= opts.MinVariance {
		return false
	}
	for i := 1; i < len(energies); i++ {
		if math.Abs(energies[i]-energies[i-1]) > opts.MinFrameJump {
			return true
		}
	}
	return false
}

// FrameEnergies returns the RMS energy in dB of each complete 20ms frame.
func FrameEnergies(samples []float64, sampleRate int) []float64 {
	frameSize := int(math.Floor(float64(sampleRate) * frameDuration))
	if frameSize <= 0 {
		return nil
	}
	frames := len(samples) / frameSize
	energies := make([]float64, 0, frames)
	for i := 0; i < frames; i++ {
		start := i * frameSize
		energies = append(energies, RMSEnergyDB(samples[start:start+frameSize]))
	}
	return energies
}

// FromPCM16 converts signed 16-bit samples to floats in [-1,1).
func FromPCM16(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / 32768.0
	}
	return out
}
