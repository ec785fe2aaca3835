package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chroniclehq/chronicle/pkg/channels/gochannel"
	"github.com/chroniclehq/chronicle/pkg/mocks"
	"github.com/chroniclehq/chronicle/pkg/models"
	"github.com/chroniclehq/chronicle/pkg/notify"
)

func sampleNotification() notify.ApprovalNotification {
	return notify.ApprovalNotification{
		ApprovalID: "appr-1",
		WorkflowID: "wf-1",
		StepID:     "deploy",
		RiskLevel:  models.RiskLevelHigh,
		Status:     models.ApprovalStatusPending,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
		At:         time.Now().UTC(),
	}
}

func TestWatermillNotifier_PublishesRequested(t *testing.T) {
	publisher, subscriber, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := subscriber.Subscribe(ctx, notify.ApprovalTopic)
	require.NoError(t, err)

	notifier := notify.NewWatermillNotifier(publisher)
	defer func() { _ = notifier.Close() }()

	require.NoError(t, notifier.ApprovalRequested(ctx, sampleNotification()))

	select {
	case msg := <-messages:
		msg.Ack()

		assert.Equal(t, string(notify.KindApprovalRequested), msg.Metadata.Get(notify.KindMetadataKey))
		assert.Equal(t, "wf-1", msg.Metadata.Get(notify.WorkflowMetadataKey))

		var delivered notify.ApprovalNotification
		require.NoError(t, json.Unmarshal(msg.Payload, &delivered))
		assert.Equal(t, notify.KindApprovalRequested, delivered.Kind)
		assert.Equal(t, "appr-1", delivered.ApprovalID)
		assert.Equal(t, models.RiskLevelHigh, delivered.RiskLevel)
	case <-ctx.Done():
		t.Fatal("timed out waiting for notification")
	}
}

func TestWatermillNotifier_PublishesDecided(t *testing.T) {
	publisher, subscriber, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := subscriber.Subscribe(ctx, notify.ApprovalTopic)
	require.NoError(t, err)

	notifier := notify.NewWatermillNotifier(publisher)
	defer func() { _ = notifier.Close() }()

	decided := sampleNotification()
	decided.Status = models.ApprovalStatusApproved
	decided.DecidedBy = "alice"

	require.NoError(t, notifier.ApprovalDecided(ctx, decided))

	select {
	case msg := <-messages:
		msg.Ack()

		assert.Equal(t, string(notify.KindApprovalDecided), msg.Metadata.Get(notify.KindMetadataKey))
	case <-ctx.Done():
		t.Fatal("timed out waiting for notification")
	}
}

func TestTicketingNotifier_OpensAndClosesTicket(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ticketer := new(mocks.MockTicketer)
	ticketer.On("CreateTicket", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return("TICKET-42", nil)
	ticketer.On("UpdateTicketStatus", ctx, "TICKET-42", "approved").Return(nil)

	notifier := notify.NewTicketingNotifier(ticketer, logger)

	require.NoError(t, notifier.ApprovalRequested(ctx, sampleNotification()))

	decided := sampleNotification()
	decided.Status = models.ApprovalStatusApproved

	require.NoError(t, notifier.ApprovalDecided(ctx, decided))
	ticketer.AssertExpectations(t)
}

func TestTicketingNotifier_IgnoresUnknownApproval(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ticketer := new(mocks.MockTicketer)
	notifier := notify.NewTicketingNotifier(ticketer, logger)

	// No ticket was opened for this approval; deciding must not touch the
	// ticketing system.
	require.NoError(t, notifier.ApprovalDecided(ctx, sampleNotification()))
	ticketer.AssertNotCalled(t, "UpdateTicketStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestTicketingNotifier_CreateFailure(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ticketer := new(mocks.MockTicketer)
	ticketer.On("CreateTicket", ctx, mock.Anything, mock.Anything).
		Return("", errors.New("ticketing system down"))

	notifier := notify.NewTicketingNotifier(ticketer, logger)

	err := notifier.ApprovalRequested(ctx, sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create ticket")
}

func TestMultiNotifier(t *testing.T) {
	ctx := context.Background()

	first := new(mocks.MockNotifier)
	second := new(mocks.MockNotifier)

	notification := sampleNotification()

	first.On("ApprovalRequested", ctx, notification).Return(nil)
	second.On("ApprovalRequested", ctx, notification).Return(nil)

	multi := notify.MultiNotifier{first, second}
	require.NoError(t, multi.ApprovalRequested(ctx, notification))

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestMultiNotifier_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()

	first := new(mocks.MockNotifier)
	second := new(mocks.MockNotifier)

	notification := sampleNotification()

	first.On("ApprovalDecided", ctx, notification).Return(errors.New("sink unavailable"))

	multi := notify.MultiNotifier{first, second}
	require.Error(t, multi.ApprovalDecided(ctx, notification))

	second.AssertNotCalled(t, "ApprovalDecided", mock.Anything, mock.Anything)
}
