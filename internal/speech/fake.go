package speech

import (
	"context"
	"sync"

	"github.com/rbright/wakeproof/internal/audio"
)

// Fake is a scripted engine. Each Stop emits the next queued utterance.
type Fake struct {
	mu       sync.Mutex
	events   chan Event
	queue    []FakeUtterance
	StartErr error
	starts   int
	cancels  int
	language string
}

// FakeUtterance scripts one recording attempt.
type FakeUtterance struct {
	Partials   []string
	Transcript string
	Confidence float64
	Samples    []int16
	Err        error
}

// NewFake returns an engine that replays utterances in order.
func NewFake(utterances ...FakeUtterance) *Fake {
	return &Fake{queue: utterances}
}

// Queue appends utterances.
func (f *Fake) Queue(utterances ...FakeUtterance) {
	f.mu.Lock()
	f.queue = append(f.queue, utterances...)
	f.mu.Unlock()
}

func (f *Fake) Start(_ context.Context, language string) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.events != nil {
		return nil, ErrBusy
	}
	f.events = make(chan Event, 16)
	f.language = language
	f.starts++
	return f.events, nil
}

func (f *Fake) Stop(context.Context) (audio.Clip, error) {
	f.mu.Lock()
	events := f.events
	f.events = nil
	var next FakeUtterance
	if len(f.queue) > 0 {
		next = f.queue[0]
		f.queue = f.queue[1:]
	}
	f.mu.Unlock()

	if events == nil {
		return audio.Clip{}, ErrNotStarted
	}
	defer close(events)

	clip := audio.Clip{Samples: next.Samples, SampleRate: audio.SampleRate}
	if next.Err != nil {
		events <- Event{Err: next.Err}
		return clip, next.Err
	}
	for _, partial := range next.Partials {
		events <- Event{Transcript: partial}
	}
	if next.Transcript != "" {
		events <- Event{Transcript: next.Transcript, IsFinal: true, Confidence: next.Confidence}
	}
	return clip, nil
}

func (f *Fake) Cancel(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events != nil {
		close(f.events)
		f.events = nil
		f.cancels++
	}
	return nil
}

// Recording reports whether a recording is active.
func (f *Fake) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events != nil
}

// Counts returns how many recordings were started and cancelled.
func (f *Fake) Counts() (starts int, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.cancels
}

// Language returns the language hint of the last Start.
func (f *Fake) Language() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.language
}
