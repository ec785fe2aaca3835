package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// DefaultMaxRetries bounds retry_step attempts per step unless the caller
// overrides the budget.
const DefaultMaxRetries = 3

// RetryStatus is the scheduling outcome of a retry request.
type RetryStatus struct {
	StepID      string        `json:"step_id"`
	Attempt     int           `json:"attempt"`
	MaxRetries  int           `json:"max_retries"`
	Backoff     time.Duration `json:"backoff"`
	NextAttempt time.Time     `json:"next_attempt"`
}

// RetryFromStep records a retry attempt for a failed step and computes the
// exponential backoff before the step may run again. Attempts beyond the
// budget return RetryExhaustedError without touching the log.
func (e *Engine) RetryFromStep(ctx context.Context, workflowID, stepID string, maxRetries int) (*RetryStatus, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	state, err := e.Reconstruct(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	attempt := 1

	if retry, ok := state.Retries[stepID]; ok {
		attempt = retry.Attempts + 1

		if retry.MaxRetries > 0 {
			maxRetries = retry.MaxRetries
		}
	}

	if attempt > maxRetries {
		return nil, &RetryExhaustedError{WorkflowID: workflowID, StepID: stepID, Attempts: attempt - 1}
	}

	backoff := e.backoffFor(attempt)

	event, err := e.Emit(ctx, workflowID, models.ActionRetryStep, map[string]any{
		"step_id":       stepID,
		"retry_attempt": attempt,
		"max_retries":   maxRetries,
		"backoff_ms":    backoff.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	return &RetryStatus{
		StepID:      stepID,
		Attempt:     attempt,
		MaxRetries:  maxRetries,
		Backoff:     backoff,
		NextAttempt: event.Timestamp.Add(backoff),
	}, nil
}

// backoffFor doubles the delay per attempt and adds up to 50% jitter so
// synchronized retries spread out.
func (e *Engine) backoffFor(attempt int) time.Duration {
	delay := e.retryBaseDelay

	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := 1 + rand.Float64()/2 //nolint:gosec // scheduling jitter, not crypto

	return time.Duration(float64(delay) * jitter)
}
