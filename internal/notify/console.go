package notify

import (
	"context"
	"log"
	"time"
)

// Console is a Capability that always grants permission and logs what
// it would deliver. It stands in for the platform notifier when cadence
// runs as a plain server process.
type Console struct{}

func NewConsole() *Console {
	return &Console{}
}

func (c *Console) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (c *Console) Schedule(ctx context.Context, id string, fireAt time.Time, title, body string) error {
	log.Printf("notify: scheduled %s at %s: %s (%s)", id, fireAt.Format(time.RFC3339), title, body)
	return nil
}

func (c *Console) Cancel(ctx context.Context, id string) error {
	log.Printf("notify: cancelled %s", id)
	return nil
}
