// Package fsm is the transition table of a verification session.
package fsm

import "fmt"

type State string

type Event string

const (
	StateDormant            State = "dormant"
	StateAwaitingPhaseStart State = "awaiting_phase_start"
	StateRecording          State = "recording"
	StateVerifying          State = "verifying"
	StatePhaseFailed        State = "phase_failed"
	StatePhaseAdvance       State = "phase_advance"
	StateCompleted          State = "completed"
	StateDismissed          State = "dismissed"
	StateSnoozed            State = "snoozed"
)

const (
	EventFire     Event = "fire"
	EventNoPhases Event = "no_phases"
	EventRecord   Event = "record"
	EventStop     Event = "stop"
	EventAbort    Event = "abort"
	EventReject   Event = "reject"
	EventFail     Event = "fail"
	EventAdvance  Event = "advance"
	EventPass     Event = "pass"
	EventSnooze   Event = "snooze"
	EventDismiss  Event = "dismiss"
)

// Terminal reports whether s ends the session.
func (s State) Terminal() bool {
	return s == StateDismissed || s == StateSnoozed
}

// CanRecord reports whether a recording attempt may start from s.
func (s State) CanRecord() bool {
	return s == StateAwaitingPhaseStart || s == StatePhaseFailed || s == StatePhaseAdvance
}

func Transition(current State, event Event) (State, error) {
	if event == EventSnooze {
		if current == StateDormant || current.Terminal() {
			return current, invalidTransition(current, event)
		}
		return StateSnoozed, nil
	}

	switch current {
	case StateDormant:
		switch event {
		case EventFire:
			return StateAwaitingPhaseStart, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingPhaseStart, StatePhaseFailed, StatePhaseAdvance:
		switch event {
		case EventRecord:
			return StateRecording, nil
		case EventNoPhases:
			if current == StateAwaitingPhaseStart {
				return StateCompleted, nil
			}
			return current, invalidTransition(current, event)
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateVerifying, nil
		case EventAbort:
			return StateAwaitingPhaseStart, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateVerifying:
		switch event {
		case EventAbort, EventReject:
			return StateAwaitingPhaseStart, nil
		case EventFail:
			return StatePhaseFailed, nil
		case EventAdvance:
			return StatePhaseAdvance, nil
		case EventPass:
			return StateCompleted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCompleted:
		switch event {
		case EventDismiss:
			return StateDismissed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDismissed, StateSnoozed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
