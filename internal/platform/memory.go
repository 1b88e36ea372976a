package platform

import (
	"context"
	"errors"
	"sync"

	"github.com/rbright/wakeproof/internal/model"
)

// Memory keeps triggers in process. It backs tests and the `memory` backend.
type Memory struct {
	mu          sync.Mutex
	triggers    map[string]model.ScheduledRecord
	exact       bool
	registerErr error
	registers   int
	cancels     int
}

// NewMemory returns an in-process platform that can schedule exact triggers.
func NewMemory() *Memory {
	return &Memory{triggers: map[string]model.ScheduledRecord{}, exact: true}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Register(_ context.Context, record model.ScheduledRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registers++
	if m.registerErr != nil {
		return m.registerErr
	}
	if _, exists := m.triggers[record.AlarmID]; exists {
		return errors.New("trigger already registered for " + record.AlarmID)
	}
	m.triggers[record.AlarmID] = record
	return nil
}

func (m *Memory) Cancel(_ context.Context, alarmID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	delete(m.triggers, alarmID)
	return nil
}

func (m *Memory) CanScheduleExact(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exact
}

// SetExact toggles the exact-trigger capability.
func (m *Memory) SetExact(exact bool) {
	m.mu.Lock()
	m.exact = exact
	m.mu.Unlock()
}

// FailRegister makes subsequent Register calls return err.
func (m *Memory) FailRegister(err error) {
	m.mu.Lock()
	m.registerErr = err
	m.mu.Unlock()
}

// Trigger returns the registered trigger for alarmID.
func (m *Memory) Trigger(alarmID string) (model.ScheduledRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.triggers[alarmID]
	return record, ok
}

// Len returns the number of registered triggers.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.triggers)
}

// Calls returns how many Register and Cancel calls were made.
func (m *Memory) Calls() (registers int, cancels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registers, m.cancels
}
