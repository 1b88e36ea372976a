// Package events delivers fired alarm payloads to the running application
// exactly once, bridging fires that happen while no process is listening.
package events

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/store"
)

const watchDebounce = 50 * time.Millisecond

// Listener receives a delivered payload. It runs with the channel lock held
// and must not subscribe or close subscriptions.
type Listener func(ctx context.Context, payload model.Payload)

// Channel fans fired payloads out to live subscribers through the store
// mailbox. A payload reaches subscribers only after it was taken from the
// mailbox, so a startup drain and a live publish cannot both deliver it.
type Channel struct {
	store  *store.Store
	logger zerolog.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]Listener
}

// Subscription is the handle returned by OnFired.
type Subscription struct {
	channel *Channel
	id      uint64
	once    sync.Once
}

// NewChannel constructs a channel over the store mailbox.
func NewChannel(s *store.Store, logger zerolog.Logger) *Channel {
	return &Channel{
		store:     s,
		logger:    logger,
		listeners: map[uint64]Listener{},
	}
}

// OnFired registers listener until the returned subscription is closed.
func (c *Channel) OnFired(listener Listener) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.listeners[c.nextID] = listener
	return &Subscription{channel: c, id: c.nextID}
}

// Close unregisters the listener. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.channel.mu.Lock()
		delete(s.channel.listeners, s.id)
		s.channel.mu.Unlock()
	})
}

// Subscribers reports the number of live listeners.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Publish writes payload to the mailbox, then delivers it to any live
// subscribers. With no subscribers the payload waits for the next drain.
func (c *Channel) Publish(ctx context.Context, payload model.Payload) error {
	if err := c.store.PutLastTriggered(ctx, payload); err != nil {
		return fmt.Errorf("write mailbox: %w", err)
	}
	_, err := c.Drain(ctx)
	return err
}

// ConsumePending takes the mailbox payload without notifying subscribers.
func (c *Channel) ConsumePending(ctx context.Context) (*model.Payload, error) {
	return c.store.TakeLastTriggered(ctx)
}

// Drain takes the mailbox payload and delivers it to every live subscriber.
// Without subscribers the mailbox is left untouched.
func (c *Channel) Drain(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.listeners) == 0 {
		return false, nil
	}

	payload, err := c.store.TakeLastTriggered(ctx)
	if err != nil {
		return false, fmt.Errorf("take mailbox: %w", err)
	}
	if payload == nil {
		return false, nil
	}

	c.logger.Info().
		Str("alarm_id", payload.AlarmID).
		Str("token", payload.AntiCheatToken).
		Int("subscribers", len(c.listeners)).
		Msg("payload delivered")
	for _, listener := range c.listeners {
		listener(ctx, *payload)
	}
	return true, nil
}

// Watch drains once, then drains again whenever the state file changes,
// which catches fires recorded by another process. It returns when ctx ends.
func (c *Channel) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(c.store.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", c.store.Dir(), err)
	}

	if _, err := c.Drain(ctx); err != nil {
		c.logger.Error().Err(err).Msg("startup drain failed")
	}

	stateName := filepath.Base(c.store.Path())
	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != stateName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !pending {
				pending = true
				debounce.Reset(watchDebounce)
			}
		case <-debounce.C:
			pending = false
			if _, err := c.Drain(ctx); err != nil {
				c.logger.Error().Err(err).Msg("drain after state change failed")
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn().Err(watchErr).Msg("state watcher error")
		}
	}
}
