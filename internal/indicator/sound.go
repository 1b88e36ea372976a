package indicator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueRing cueKind = iota + 1
	cueListen
	cueSuccess
	cueRetry
)

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	ringCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 988, duration: 180 * time.Millisecond, volume: 0.3},
		{frequencyHz: 1319, duration: 180 * time.Millisecond, volume: 0.3},
		{frequencyHz: 988, duration: 180 * time.Millisecond, volume: 0.3},
		{frequencyHz: 0, duration: 500 * time.Millisecond},
	})
	listenCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	successCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1319, duration: 120 * time.Millisecond, volume: 0.18},
	})
	retryCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.18},
	})
)

// player renders PCM16 mono at cueSampleRate. With loop set it repeats
// until ctx is done.
type player interface {
	Play(ctx context.Context, samples []int16, loop bool) error
}

// pulsePlayer plays cues through the PulseAudio (or pipewire-pulse) server.
type pulsePlayer struct {
	appName string
}

func (p pulsePlayer) Play(ctx context.Context, samples []int16, loop bool) error {
	if len(samples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName(p.appName),
		pulse.ClientApplicationIconName("alarm-symbolic"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	stream, err := client.NewPlayback(
		pulse.Int16Reader(newCueReader(ctx, samples, loop)),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(p.appName+" alarm"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// newCueReader feeds samples to a playback stream and ends the stream once
// the samples run out (without loop) or ctx is done.
func newCueReader(ctx context.Context, samples []int16, loop bool) func([]int16) (int, error) {
	cursor := 0
	return func(buf []int16) (int, error) {
		if ctx.Err() != nil {
			return 0, pulse.EndOfData
		}

		n := 0
		for n < len(buf) {
			if cursor >= len(samples) {
				if !loop {
					return n, pulse.EndOfData
				}
				cursor = 0
			}
			copied := copy(buf[n:], samples[cursor:])
			cursor += copied
			n += copied
		}
		if !loop && cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	}
}

func cueSamples(kind cueKind) []int16 {
	switch kind {
	case cueRing:
		return ringCuePCM
	case cueListen:
		return listenCuePCM
	case cueSuccess:
		return successCuePCM
	case cueRetry:
		return retryCuePCM
	default:
		return nil
	}
}

// synthesizeCue joins tones with short gaps. A zero-frequency tone is silence.
func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gapSamples := samplesForDuration(22 * time.Millisecond)

	var pcm []int16
	for i, part := range parts {
		if part.frequencyHz == 0 {
			pcm = append(pcm, make([]int16, samplesForDuration(part.duration))...)
		} else {
			pcm = append(pcm, synthesizeTone(part)...)
		}
		if i < len(parts)-1 && gapSamples > 0 {
			pcm = append(pcm, make([]int16, gapSamples)...)
		}
	}
	return pcm
}

func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	attackRelease := n / 10
	maxRamp := cueSampleRate / 200 // 5ms
	if attackRelease > maxRamp {
		attackRelease = maxRamp
	}
	if attackRelease < 1 {
		attackRelease = 1
	}

	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		envelope := 1.0
		if i < attackRelease {
			envelope = float64(i) / float64(attackRelease)
		}
		releaseIndex := n - i - 1
		if releaseIndex < attackRelease {
			release := float64(releaseIndex) / float64(attackRelease)
			if release < envelope {
				envelope = release
			}
		}
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * 32767))
	}

	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
