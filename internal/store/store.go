// Package store persists wakeproof state in a single compressed file shared
// by the daemon and the platform receiver process.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/rbright/wakeproof/internal/model"
)

const (
	stateFileName = "state.json.zst"
	lockFileName  = "state.lock"

	lockRetryDelay     = 20 * time.Millisecond
	defaultLockTimeout = 5 * time.Second

	schemaVersion = 1
)

// State is the full persisted document. Every writer replaces it whole
// under the exclusive lock.
type State struct {
	Version       int                              `json:"version"`
	Alarms        map[string]model.Alarm           `json:"alarms"`
	Scheduled     map[string]model.ScheduledRecord `json:"scheduled"`
	LastTriggered *model.Payload                   `json:"last_triggered,omitempty"`
	Runs          map[string]model.Run             `json:"runs"`
	Streak        model.Streak                     `json:"streak"`
	Permission    model.PermissionStatus           `json:"permission,omitempty"`
}

func newState() State {
	return State{
		Version:    schemaVersion,
		Alarms:     map[string]model.Alarm{},
		Scheduled:  map[string]model.ScheduledRecord{},
		Runs:       map[string]model.Run{},
		Permission: model.PermissionNotDetermined,
	}
}

// ErrSkipWrite may be returned by an Update callback to finish without
// writing the state file.
var ErrSkipWrite = errors.New("store: skip write")

// Store guards the state file with an in-process mutex and a cross-process
// flock. A single Store serializes readers too since the flock handle is shared.
type Store struct {
	dir         string
	path        string
	lockTimeout time.Duration

	mu   sync.Mutex
	lock *flock.Flock

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open prepares dir for state persistence.
func Open(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{
		dir:         dir,
		path:        filepath.Join(dir, stateFileName),
		lockTimeout: defaultLockTimeout,
		lock:        flock.New(filepath.Join(dir, lockFileName)),
		encoder:     encoder,
		decoder:     decoder,
	}, nil
}

// ResolveDir returns XDG_STATE_HOME/wakeproof or ~/.local/state/wakeproof.
func ResolveDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "wakeproof"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "wakeproof"), nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// Close releases codec resources.
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return nil
}

// View loads the current state under a shared lock.
func (s *Store) View(ctx context.Context, fn func(State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, false); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	state, err := s.load()
	if err != nil {
		return err
	}
	return fn(state)
}

// Update runs fn against the current state under an exclusive lock and
// persists the result. Nothing is written when fn fails.
func (s *Store) Update(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	state, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&state); err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return nil
		}
		return err
	}
	return s.save(state)
}

func (s *Store) acquire(ctx context.Context, exclusive bool) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(lockCtx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(lockCtx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("acquire state lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("acquire state lock %s: timed out", s.lock.Path())
	}
	return nil
}

func (s *Store) load() (State, error) {
	state := newState()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}

	raw, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return State{}, fmt.Errorf("decompress state: %w", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}

	if state.Alarms == nil {
		state.Alarms = map[string]model.Alarm{}
	}
	if state.Scheduled == nil {
		state.Scheduled = map[string]model.ScheduledRecord{}
	}
	if state.Runs == nil {
		state.Runs = map[string]model.Run{}
	}
	if state.Permission == "" {
		state.Permission = model.PermissionNotDetermined
	}
	return state, nil
}

// save writes through a temp file, fsyncs, and renames over the state file.
func (s *Store) save(state State) error {
	state.Version = schemaVersion
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data := s.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	tmpFile := s.path + ".tmp"
	file, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("close temp state: %w", err)
	}

	if err := os.Rename(tmpFile, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
