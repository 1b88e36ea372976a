// Package speech defines the recognizer contract consumed by verification
// sessions and provides HTTP-backed and in-memory engines.
package speech

import (
	"context"
	"errors"

	"github.com/rbright/wakeproof/internal/audio"
)

var (
	// ErrBusy is returned by Start while a recording is active.
	ErrBusy = errors.New("speech engine already recording")
	// ErrNotStarted is returned by Stop without an active recording.
	ErrNotStarted = errors.New("speech engine not recording")
)

// Event is one streaming recognizer result or error.
type Event struct {
	Transcript string
	IsFinal    bool
	Confidence float64
	Err        error
}

// Engine captures and recognizes one utterance at a time. The channel
// returned by Start is closed before Stop or Cancel returns.
type Engine interface {
	Start(ctx context.Context, language string) (<-chan Event, error)
	Stop(ctx context.Context) (audio.Clip, error)
	Cancel(ctx context.Context) error
}
