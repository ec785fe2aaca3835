package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/chroniclehq/chronicle/pkg/channels/gochannel"
	"github.com/chroniclehq/chronicle/pkg/channels/kafka"
	"github.com/chroniclehq/chronicle/pkg/notify"
)

// NewNotifier builds the approval notification sink from a comma-separated
// provider list: "kafka" for external consumers, "gochannel" for in-process
// delivery, "none" (or empty) for no sink. Multiple providers compose into
// one fan-out sink. Ticketing has no built-in backend; embedding callers
// compose a notify.TicketingNotifier in through notify.MultiNotifier.
func NewNotifier(providers, serviceName string, logger *slog.Logger) (notify.Notifier, error) {
	var sinks notify.MultiNotifier

	for _, provider := range strings.Split(providers, ",") {
		switch strings.TrimSpace(provider) {
		case "kafka":
			publisher, _, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
			if err != nil {
				return nil, fmt.Errorf("failed to create Kafka notification channel: %w", err)
			}

			sinks = append(sinks, notify.NewWatermillNotifier(publisher))
		case "gochannel":
			publisher, _, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("failed to create in-memory notification channel: %w", err)
			}

			sinks = append(sinks, notify.NewWatermillNotifier(publisher))
		case "", "none":
		default:
			return nil, fmt.Errorf("unknown notifier provider %q", provider)
		}
	}

	switch len(sinks) {
	case 0:
		return notify.NoopNotifier{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}
