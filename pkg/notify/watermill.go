package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// WatermillNotifier publishes approval notifications to a watermill topic.
// Pair it with pkg/channels/gochannel for in-process delivery or
// pkg/channels/kafka for production.
type WatermillNotifier struct {
	publisher message.Publisher
}

// NewWatermillNotifier creates a notifier over any watermill publisher.
func NewWatermillNotifier(publisher message.Publisher) *WatermillNotifier {
	return &WatermillNotifier{publisher: publisher}
}

func (n *WatermillNotifier) ApprovalRequested(ctx context.Context, notification ApprovalNotification) error {
	notification.Kind = KindApprovalRequested

	return n.publish(notification)
}

func (n *WatermillNotifier) ApprovalDecided(ctx context.Context, notification ApprovalNotification) error {
	notification.Kind = KindApprovalDecided

	return n.publish(notification)
}

func (n *WatermillNotifier) publish(notification ApprovalNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal %s notification: %w", notification.Kind, err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(KindMetadataKey, string(notification.Kind))
	msg.Metadata.Set(WorkflowMetadataKey, notification.WorkflowID)

	return n.publisher.Publish(ApprovalTopic, msg)
}

func (n *WatermillNotifier) Close() error {
	return n.publisher.Close()
}
