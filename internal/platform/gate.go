package platform

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/store"
)

var (
	// ErrNotInteractive is returned when a prompt is needed but stdin is not a TTY.
	ErrNotInteractive = errors.New("permission prompt requires an interactive terminal")
	// ErrPromptAborted leaves the status undecided.
	ErrPromptAborted = errors.New("permission prompt aborted")
)

// Prompter asks the user to grant permission.
type Prompter func(ctx context.Context) (bool, error)

// StoreGate persists the permission decision in the state store. Denied is
// sticky: only `permission reset` returns it to notDetermined.
type StoreGate struct {
	store  *store.Store
	prompt Prompter
}

// NewStoreGate returns a gate that prompts with prompt. A nil prompt uses
// the interactive terminal prompt.
func NewStoreGate(s *store.Store, prompt Prompter) *StoreGate {
	if prompt == nil {
		prompt = TerminalPrompt
	}
	return &StoreGate{store: s, prompt: prompt}
}

// Status returns the persisted permission status.
func (g *StoreGate) Status(ctx context.Context) (model.PermissionStatus, error) {
	status := model.PermissionNotDetermined
	err := g.store.View(ctx, func(state store.State) error {
		if state.Permission != "" {
			status = state.Permission
		}
		return nil
	})
	return status, err
}

// Request prompts only from notDetermined. Any other status is returned
// as-is without prompting.
func (g *StoreGate) Request(ctx context.Context) (bool, error) {
	status, err := g.Status(ctx)
	if err != nil {
		return false, err
	}
	if status != model.PermissionNotDetermined {
		return status.Granted(), nil
	}

	granted, err := g.prompt(ctx)
	if err != nil {
		return false, err
	}

	decision := model.PermissionDenied
	if granted {
		decision = model.PermissionAuthorized
	}
	if err := g.Set(ctx, decision); err != nil {
		return false, err
	}
	return granted, nil
}

// Set persists status.
func (g *StoreGate) Set(ctx context.Context, status model.PermissionStatus) error {
	return g.store.Update(ctx, func(state *store.State) error {
		state.Permission = status
		return nil
	})
}

// Reset returns the gate to notDetermined.
func (g *StoreGate) Reset(ctx context.Context) error {
	return g.Set(ctx, model.PermissionNotDetermined)
}

// TerminalPrompt asks on the controlling terminal.
func TerminalPrompt(context.Context) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, ErrNotInteractive
	}

	allow := false
	err := huh.NewConfirm().
		Title("Allow wakeproof to schedule wake alarms?").
		Description("Alarms register systemd user timers that resume the machine from suspend.").
		Affirmative("Allow").
		Negative("Deny").
		Value(&allow).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrPromptAborted
		}
		return false, err
	}
	return allow, nil
}
