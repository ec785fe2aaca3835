package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Ticketer is the external ticketing/issue system. The core never calls it
// directly; it is only reached through this notifier adapter.
type Ticketer interface {
	CreateTicket(ctx context.Context, title, body string) (string, error)
	UpdateTicketStatus(ctx context.Context, ticketID, status string) error
}

// TicketingNotifier mirrors approval lifecycle into tickets: requested opens
// a ticket, decided closes it with the outcome.
type TicketingNotifier struct {
	ticketer Ticketer
	logger   *slog.Logger

	mu      sync.Mutex
	tickets map[string]string // approval id -> ticket id
}

// NewTicketingNotifier creates the ticketing adapter.
func NewTicketingNotifier(ticketer Ticketer, logger *slog.Logger) *TicketingNotifier {
	return &TicketingNotifier{
		ticketer: ticketer,
		logger:   logger.With("module", "ticketing"),
		tickets:  make(map[string]string),
	}
}

func (t *TicketingNotifier) ApprovalRequested(ctx context.Context, notification ApprovalNotification) error {
	title := fmt.Sprintf("[%s] approval needed: workflow %s step %s",
		notification.RiskLevel, notification.WorkflowID, notification.StepID)
	body := fmt.Sprintf("Approval request %s expires at %s.",
		notification.ApprovalID, notification.ExpiresAt.Format("2006-01-02 15:04:05 MST"))

	ticketID, err := t.ticketer.CreateTicket(ctx, title, body)
	if err != nil {
		return fmt.Errorf("failed to create ticket for approval %s: %w", notification.ApprovalID, err)
	}

	t.mu.Lock()
	t.tickets[notification.ApprovalID] = ticketID
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "Ticket opened", "approval_id", notification.ApprovalID, "ticket_id", ticketID)

	return nil
}

func (t *TicketingNotifier) ApprovalDecided(ctx context.Context, notification ApprovalNotification) error {
	t.mu.Lock()
	ticketID, ok := t.tickets[notification.ApprovalID]
	delete(t.tickets, notification.ApprovalID)
	t.mu.Unlock()

	if !ok {
		// Requested on another instance or before a restart; nothing to update.
		return nil
	}

	err := t.ticketer.UpdateTicketStatus(ctx, ticketID, string(notification.Status))
	if err != nil {
		return fmt.Errorf("failed to update ticket %s for approval %s: %w", ticketID, notification.ApprovalID, err)
	}

	return nil
}

func (t *TicketingNotifier) Close() error {
	return nil
}
