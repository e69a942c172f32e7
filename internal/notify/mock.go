package notify

import (
	"context"
	"time"
)

// MockCall records one Schedule call observed by the mock.
type MockCall struct {
	ID     string
	FireAt time.Time
	Title  string
	Body   string
}

// Mock is a test double for the Capability interface. It can also back
// dry-run mode.
type Mock struct {
	Granted       bool
	PermissionErr error
	ScheduleErr   map[string]error // per-id scheduling failures

	PermissionRequests int
	Scheduled          []MockCall
	Cancelled          []string
}

// NewMock returns a mock that grants permission and accepts everything.
func NewMock() *Mock {
	return &Mock{Granted: true}
}

func (m *Mock) RequestPermission(ctx context.Context) (bool, error) {
	m.PermissionRequests++
	return m.Granted, m.PermissionErr
}

func (m *Mock) Schedule(ctx context.Context, id string, fireAt time.Time, title, body string) error {
	if err := m.ScheduleErr[id]; err != nil {
		return err
	}
	m.Scheduled = append(m.Scheduled, MockCall{ID: id, FireAt: fireAt, Title: title, Body: body})
	return nil
}

func (m *Mock) Cancel(ctx context.Context, id string) error {
	m.Cancelled = append(m.Cancelled, id)
	return nil
}
