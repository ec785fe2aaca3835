package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTicketer is a mock implementation of notify.Ticketer.
type MockTicketer struct {
	mock.Mock
}

func (m *MockTicketer) CreateTicket(ctx context.Context, title, body string) (string, error) {
	args := m.Called(ctx, title, body)

	return args.String(0), args.Error(1)
}

func (m *MockTicketer) UpdateTicketStatus(ctx context.Context, ticketID, status string) error {
	args := m.Called(ctx, ticketID, status)

	return args.Error(0)
}
