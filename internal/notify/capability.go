package notify

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by capability implementations that
// report denial as an error rather than a false grant.
var ErrPermissionDenied = errors.New("notification permission denied")

// Capability is the OS-level notification boundary: permission plus
// schedule/cancel-by-id primitives. Implementations may be slow or
// asynchronous; the scheduler only trusts a confirmed success.
type Capability interface {
	RequestPermission(ctx context.Context) (bool, error)
	Schedule(ctx context.Context, id string, fireAt time.Time, title, body string) error
	Cancel(ctx context.Context, id string) error
}
