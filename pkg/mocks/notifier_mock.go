// Package mocks provides testify mocks for the engine's collaborator
// interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/chroniclehq/chronicle/pkg/notify"
)

// MockNotifier is a mock implementation of notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) ApprovalRequested(ctx context.Context, notification notify.ApprovalNotification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

func (m *MockNotifier) ApprovalDecided(ctx context.Context, notification notify.ApprovalNotification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

func (m *MockNotifier) Close() error {
	args := m.Called()

	return args.Error(0)
}
