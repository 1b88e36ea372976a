package store

import (
	"context"

	"github.com/rbright/wakeproof/internal/model"
)

// PutLastTriggered writes payload into the single-slot mailbox, replacing any
// undelivered payload.
func (s *Store) PutLastTriggered(ctx context.Context, payload model.Payload) error {
	return s.Update(ctx, func(state *State) error {
		p := payload
		state.LastTriggered = &p
		return nil
	})
}

// TakeLastTriggered atomically reads and clears the mailbox. Concurrent
// callers, in this process or another, never both observe the same payload.
// An empty mailbox is not rewritten.
func (s *Store) TakeLastTriggered(ctx context.Context) (*model.Payload, error) {
	var taken *model.Payload
	err := s.Update(ctx, func(state *State) error {
		if state.LastTriggered == nil {
			return ErrSkipWrite
		}
		taken = state.LastTriggered
		state.LastTriggered = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// PeekLastTriggered reports the mailbox content without consuming it.
func (s *Store) PeekLastTriggered(ctx context.Context) (*model.Payload, error) {
	var peeked *model.Payload
	err := s.View(ctx, func(state State) error {
		if state.LastTriggered != nil {
			p := *state.LastTriggered
			peeked = &p
		}
		return nil
	})
	return peeked, err
}
