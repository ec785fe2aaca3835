package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockLocker is a mock implementation of locks.Locker.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, resourceID, ttl)

	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Release(ctx context.Context, resourceID string) error {
	args := m.Called(ctx, resourceID)

	return args.Error(0)
}
