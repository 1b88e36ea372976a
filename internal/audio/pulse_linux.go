//go:build linux

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	chunkSizeBytes = 640 // 20ms @ 16kHz mono s16
	clientName     = "wakeproof"
)

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// NewRecorder returns a Pulse recorder bound to device.
func NewRecorder(device Device) Recorder {
	return &PulseRecorder{device: device}
}

// PulseRecorder captures one utterance per Start/Stop pair from a Pulse source.
type PulseRecorder struct {
	device Device

	mu     sync.Mutex
	active *pulseCapture
}

type pulseCapture struct {
	client *pulse.Client
	stream *pulse.RecordStream
	buffer *captureBuffer
	done   chan struct{}
	once   sync.Once
}

// Start opens a 16kHz mono s16 record stream. Cancelling ctx releases it.
func (r *PulseRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return fmt.Errorf("capture already running on %q", r.device.ID)
	}

	client, err := newPulseClient()
	if err != nil {
		return err
	}

	source, err := client.SourceByID(r.device.ID)
	if err != nil {
		client.Close()
		return fmt.Errorf("resolve source %q: %w", r.device.ID, err)
	}

	capture := &pulseCapture{
		client: client,
		buffer: &captureBuffer{},
		done:   make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(capture.buffer.write), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("wakeproof verification"),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse record stream: %w", err)
	}
	capture.stream = stream
	stream.Start()
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

// Stop releases the stream and returns the captured clip.
func (r *PulseRecorder) Stop() Clip {
	capture := r.detach()
	if capture == nil {
		return Clip{SampleRate: SampleRate}
	}
	pcm := capture.release()
	return Clip{Samples: SamplesFromPCM(pcm), SampleRate: SampleRate}
}

// Cancel releases the stream and discards the buffer.
func (r *PulseRecorder) Cancel() {
	if capture := r.detach(); capture != nil {
		capture.release()
	}
}

func (r *PulseRecorder) detach() *pulseCapture {
	r.mu.Lock()
	defer r.mu.Unlock()
	capture := r.active
	r.active = nil
	return capture
}

func (c *pulseCapture) release() []byte {
	var pcm []byte
	c.once.Do(func() {
		close(c.done)
		pcm = c.buffer.seal()
		if c.stream != nil {
			c.stream.Stop()
			c.stream.Close()
		}
		if c.client != nil {
			c.client.Close()
		}
	})
	return pcm
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName("alarm-clock"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
