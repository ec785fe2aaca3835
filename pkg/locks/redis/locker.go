// Package redis implements the resource-lock service on Redis using
// SET NX with a TTL and an owner token checked on release.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "chronicle:lock:"

// releaseScript deletes the key only when this owner still holds it, so an
// expired-and-reacquired lock is never released by the old owner.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Locker acquires and releases named resource locks in Redis.
type Locker struct {
	client redis.UniversalClient
	owner  string
}

// NewLocker creates a locker with a unique owner token.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{
		client: client,
		owner:  uuid.New().String(),
	}
}

// Acquire attempts SET NX with the given TTL.
func (l *Locker) Acquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, keyPrefix+resourceID, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock on %s: %w", resourceID, err)
	}

	return acquired, nil
}

// Release releases the lock if this owner still holds it.
func (l *Locker) Release(ctx context.Context, resourceID string) error {
	err := releaseScript.Run(ctx, l.client, []string{keyPrefix + resourceID}, l.owner).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock on %s: %w", resourceID, err)
	}

	return nil
}
