package audio

import (
	"context"
	"errors"
	"sync"
)

// Fake replays a fixed clip. Start fails with StartErr when set.
type Fake struct {
	mu       sync.Mutex
	samples  []int16
	started  bool
	StartErr error

	starts  int
	cancels int
}

// NewFake returns a recorder that yields samples on every Stop.
func NewFake(samples []int16) *Fake {
	return &Fake{samples: samples}
}

// SetSamples replaces the clip returned by the next Stop.
func (f *Fake) SetSamples(samples []int16) {
	f.mu.Lock()
	f.samples = samples
	f.mu.Unlock()
}

func (f *Fake) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.started {
		return errors.New("capture already running")
	}
	f.started = true
	f.starts++
	return nil
}

func (f *Fake) Stop() Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return Clip{SampleRate: SampleRate}
	}
	f.started = false
	out := make([]int16, len(f.samples))
	copy(out, f.samples)
	return Clip{Samples: out, SampleRate: SampleRate}
}

func (f *Fake) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		f.cancels++
	}
	f.started = false
}

// Running reports whether capture is active.
func (f *Fake) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Counts returns how many captures were started and cancelled.
func (f *Fake) Counts() (starts int, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.cancels
}
