package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/stretchr/testify/require"
)

func TestCueSamplesPresent(t *testing.T) {
	require.NotEmpty(t, cueSamples(cueRing))
	require.NotEmpty(t, cueSamples(cueListen))
	require.NotEmpty(t, cueSamples(cueSuccess))
	require.NotEmpty(t, cueSamples(cueRetry))
	require.Empty(t, cueSamples(cueKind(99)))
}

func TestSynthesizeToneDuration(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	want := samplesForDuration(100 * time.Millisecond)
	require.Len(t, got, want)
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSynthesizeCueZeroFrequencyIsSilence(t *testing.T) {
	pcm := synthesizeCue([]toneSpec{{frequencyHz: 0, duration: 50 * time.Millisecond}})
	require.Len(t, pcm, samplesForDuration(50*time.Millisecond))
	for _, s := range pcm {
		require.Zero(t, s)
	}
}

func TestCueReaderEndsWithoutLoop(t *testing.T) {
	read := newCueReader(context.Background(), []int16{1, 2, 3}, false)
	buf := make([]int16, 8)

	n, err := read(buf)
	require.Equal(t, 3, n)
	require.ErrorIs(t, err, pulse.EndOfData)
	require.Equal(t, []int16{1, 2, 3}, buf[:n])
}

func TestCueReaderLoopsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	read := newCueReader(ctx, []int16{1, 2, 3}, true)
	buf := make([]int16, 7)

	n, err := read(buf)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, []int16{1, 2, 3, 1, 2, 3, 1}, buf)

	cancel()
	n, err = read(buf)
	require.Zero(t, n)
	require.ErrorIs(t, err, pulse.EndOfData)
}

func TestPulsePlayerRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pulsePlayer{appName: "wakeproof"}.Play(ctx, cueSamples(cueListen), false)
	require.ErrorIs(t, err, context.Canceled)
}
