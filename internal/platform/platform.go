// Package platform registers exact wake-capable triggers with the host and
// exposes the notification permission gate.
package platform

import (
	"context"

	"github.com/rbright/wakeproof/internal/model"
)

// Platform is the host alarm service. Register must use a mechanism that
// launches the receiver even when no wakeproof process is running.
type Platform interface {
	Name() string
	Register(ctx context.Context, record model.ScheduledRecord) error
	Cancel(ctx context.Context, alarmID string) error
	CanScheduleExact(ctx context.Context) bool
}

// Gate reports and requests the permission needed to post wake triggers.
type Gate interface {
	Status(ctx context.Context) (model.PermissionStatus, error)
	Request(ctx context.Context) (bool, error)
}
