package audio

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromListPrimaryDefault(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
		{ID: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "default", "default")
	require.NoError(t, err)
	require.Equal(t, "elgato", selection.Device.ID)
	require.Empty(t, selection.Warning)
}

func TestSelectDeviceFromListMutedPrimaryUsesFallback(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
		{ID: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "elgato", "sony")
	require.NoError(t, err)
	require.Equal(t, "sony", selection.Device.ID)
	require.Contains(t, selection.Warning, "muted")
	require.True(t, selection.Fallback)
}

func TestSelectDeviceFromListFailsWhenSelectedAndFallbackMuted(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
	}

	_, err := selectDeviceFromList(devices, "default", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "muted")
}

func TestSelectDeviceFromListUnknownInput(t *testing.T) {
	devices := []Device{{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true}}

	_, err := selectDeviceFromList(devices, "missing", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not match")
}

func TestSelectDeviceFromListEmpty(t *testing.T) {
	_, err := selectDeviceFromList(nil, "default", "default")
	require.Error(t, err)
}

func TestDeviceMatchesByIDAndDescription(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono"}
	require.True(t, deviceMatches(dev, "elgato"))
	require.True(t, deviceMatches(dev, "wave 3"))
	require.False(t, deviceMatches(dev, "missing"))
	require.False(t, deviceMatches(dev, ""))
}

func TestPCMRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	require.Equal(t, samples, SamplesFromPCM(PCMFromSamples(samples)))
	require.Len(t, SamplesFromPCM([]byte{1, 2, 3}), 1)
}

func TestCaptureBufferSealStopsWrites(t *testing.T) {
	buffer := &captureBuffer{}

	n, err := buffer.write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, int64(4), buffer.captured())

	require.Equal(t, []byte{1, 2, 3, 4}, buffer.seal())

	n, err = buffer.write([]byte{5, 6})
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
	require.Nil(t, buffer.seal())
}

func TestWriterFuncDelegatesWrite(t *testing.T) {
	called := false
	writer := writerFunc(func(b []byte) (int, error) {
		called = true
		require.Equal(t, []byte{1, 2, 3}, b)
		return len(b), nil
	})

	n, err := writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, called)
}

func TestFakeStopWithoutStartIsEmpty(t *testing.T) {
	fake := NewFake([]int16{1, 2, 3})

	clip := fake.Stop()
	require.True(t, clip.Empty())
	require.Equal(t, SampleRate, clip.SampleRate)

	require.NoError(t, fake.Start(context.Background()))
	require.Error(t, fake.Start(context.Background()))

	clip = fake.Stop()
	require.Equal(t, []int16{1, 2, 3}, clip.Samples)
	require.False(t, fake.Running())
}

func TestFakeCancelReleasesDevice(t *testing.T) {
	fake := NewFake([]int16{1})
	require.NoError(t, fake.Start(context.Background()))
	fake.Cancel()
	require.False(t, fake.Running())
	require.True(t, fake.Stop().Empty())

	starts, cancels := fake.Counts()
	require.Equal(t, 1, starts)
	require.Equal(t, 1, cancels)

	fake.StartErr = errors.New("device busy")
	require.Error(t, fake.Start(context.Background()))
}

func TestClipDuration(t *testing.T) {
	require.InDelta(t, 0.5, Clip{Samples: make([]int16, 8000), SampleRate: 16000}.Duration(), 1e-9)
	require.Zero(t, Clip{}.Duration())
}
