// Package errors defines the stable error codes surfaced by wakeproof.
package errors

import (
	"errors"
	"fmt"
)

// Code is a stable error code string.
type Code string

const (
	EUsage    Code = "E_USAGE"
	EConfig   Code = "E_CONFIG"
	EStore    Code = "E_STORE"
	EInternal Code = "E_INTERNAL"

	// Scheduling.
	EPermissionDenied Code = "E_PERMISSION_DENIED" // exact-alarm, microphone, or notification access not granted
	EScheduleFailed   Code = "E_SCHEDULE_FAILED"   // platform registration failed; nothing was persisted
	EAlarmNotFound    Code = "E_ALARM_NOT_FOUND"

	// Recognition and session.
	ERecognitionUnavailable   Code = "E_RECOGNITION_UNAVAILABLE"
	ESessionInProgress        Code = "E_SESSION_IN_PROGRESS"
	ENoAudioCaptured          Code = "E_NO_AUDIO_CAPTURED"
	EAntiCheatRejected        Code = "E_ANTI_CHEAT_REJECTED"
	ESimilarityBelowThreshold Code = "E_SIMILARITY_BELOW_THRESHOLD"
	ESnoozeBudgetExhausted    Code = "E_SNOOZE_BUDGET_EXHAUSTED"
	EInvalidState             Code = "E_INVALID_STATE"
	ENoActiveSession          Code = "E_NO_ACTIVE_SESSION"
)

// WakeError is the standard coded error type.
type WakeError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string
}

// Error returns the stable format "CODE: message".
func (e *WakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *WakeError) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &WakeError{Code: code, Msg: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &WakeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// NewWithDetails creates a coded error carrying structured context.
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &WakeError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a coded error around an underlying cause.
func Wrap(code Code, msg string, err error) error {
	return &WakeError{Code: code, Msg: msg, Cause: err}
}

// GetCode extracts the code from err, or "" if err carries none.
func GetCode(err error) Code {
	var we *WakeError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// AsWakeError returns the first WakeError in err's chain.
func AsWakeError(err error) (*WakeError, bool) {
	var we *WakeError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	switch GetCode(err) {
	case "":
		if err == nil {
			return 0
		}
		return 1
	case EUsage:
		return 2
	case EPermissionDenied:
		return 3
	default:
		return 1
	}
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}
