// Package locks defines the resource-lock service the engine uses around
// risky steps (e.g. a deployment target). Lock state lives outside the event
// log; acquisition and release outcomes are recorded as event metadata.
package locks

import (
	"context"
	"time"
)

// Locker is the external resource-lock service.
type Locker interface {
	// Acquire attempts to take the lock, reporting whether it was obtained.
	Acquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error)

	// Release releases a lock held by this owner. Releasing a lock held by
	// someone else is a no-op.
	Release(ctx context.Context, resourceID string) error
}
