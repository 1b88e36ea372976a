package ipc

import (
	werrors "github.com/rbright/wakeproof/internal/errors"
)

// Commands understood by the daemon.
const (
	CommandStatus  = "status"
	CommandFired   = "fired"
	CommandRecord  = "record"
	CommandStop    = "stop"
	CommandSnooze  = "snooze"
	CommandDismiss = "dismiss"
)

type Request struct {
	Command string `json:"command"`
	AlarmID string `json:"alarm_id,omitempty"`
}

type Response struct {
	OK      bool              `json:"ok"`
	State   string            `json:"state,omitempty"`
	Phase   string            `json:"phase,omitempty"`
	Outcome string            `json:"outcome,omitempty"`
	Message string            `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorResponse renders err as a failed response, keeping its code and details.
func ErrorResponse(err error) Response {
	resp := Response{OK: false, Error: err.Error()}
	if we, ok := werrors.AsWakeError(err); ok {
		resp.Code = string(we.Code)
		resp.Error = we.Msg
		if we.Cause != nil {
			resp.Error = we.Msg + ": " + we.Cause.Error()
		}
		resp.Details = we.Details
	}
	return resp
}

// Err converts a failed response back into a coded error. It returns nil for
// successful responses.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	code := werrors.Code(r.Code)
	if code == "" {
		code = werrors.EInternal
	}
	msg := r.Error
	if msg == "" {
		msg = "daemon rejected request"
	}
	return werrors.NewWithDetails(code, msg, r.Details)
}
