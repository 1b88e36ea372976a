//go:build !linux

package audio

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// ListDevices returns miniaudio capture devices.
func ListDevices(_ context.Context) ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:          hex.EncodeToString(info.ID.Pointer()[:]),
			Description: info.Name(),
			State:       "idle",
			Available:   true,
			Default:     info.IsDefault != 0,
		})
	}
	return devices, nil
}

// NewRecorder returns a miniaudio recorder bound to device.
func NewRecorder(device Device) Recorder {
	return &MalgoRecorder{device: device}
}

// MalgoRecorder captures one utterance per Start/Stop pair through miniaudio.
type MalgoRecorder struct {
	device Device

	mu     sync.Mutex
	active *malgoCapture
}

type malgoCapture struct {
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	buffer *captureBuffer
	done   chan struct{}
	once   sync.Once
}

func (r *MalgoRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return fmt.Errorf("capture already running on %q", r.device.ID)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	capture := &malgoCapture{ctx: mctx, buffer: &captureBuffer{}, done: make(chan struct{})}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.SampleRate = SampleRate
	if r.device.ID != "" {
		idBytes, err := hex.DecodeString(r.device.ID)
		if err != nil {
			capture.release()
			return fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		config.Capture.DeviceID = devID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			_, _ = capture.buffer.write(data)
		},
	}
	dev, err := malgo.InitDevice(mctx.Context, config, callbacks)
	if err != nil {
		capture.release()
		return fmt.Errorf("init capture device: %w", err)
	}
	capture.dev = dev
	if err := dev.Start(); err != nil {
		capture.release()
		return fmt.Errorf("start capture device: %w", err)
	}
	r.active = capture

	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-capture.done:
		}
	}()
	return nil
}

func (r *MalgoRecorder) Stop() Clip {
	capture := r.detach()
	if capture == nil {
		return Clip{SampleRate: SampleRate}
	}
	return Clip{Samples: SamplesFromPCM(capture.release()), SampleRate: SampleRate}
}

func (r *MalgoRecorder) Cancel() {
	if capture := r.detach(); capture != nil {
		capture.release()
	}
}

func (r *MalgoRecorder) detach() *malgoCapture {
	r.mu.Lock()
	defer r.mu.Unlock()
	capture := r.active
	r.active = nil
	return capture
}

func (c *malgoCapture) release() []byte {
	var pcm []byte
	c.once.Do(func() {
		close(c.done)
		if c.dev != nil {
			_ = c.dev.Stop()
			c.dev.Uninit()
		}
		pcm = c.buffer.seal()
		_ = c.ctx.Uninit()
		c.ctx.Free()
	})
	return pcm
}
