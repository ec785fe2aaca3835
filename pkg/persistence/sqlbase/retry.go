package sqlbase

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialInterval = 100 * time.Millisecond
	retryMaxElapsed      = 5 * time.Second
)

// WithRetry runs op, retrying with exponential backoff while the failure
// looks like a transient connection problem. Statement-level failures
// (constraint violations, bad SQL, serialization errors) are returned
// immediately.
func WithRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxElapsedTime = retryMaxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(policy, ctx))
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}
