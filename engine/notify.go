// Package-external notification boundary. Reminders and completion
// events are fire-and-forget: delivery failure must never fail the
// engine operation that triggered it, so implementations get called,
// logged on error, and otherwise ignored.
package engine

import (
	"context"
	"log/slog"
)

// Reminder asks the notification collaborator to nudge a debtor.
// Sending one is explicitly NOT a state transition.
type Reminder struct {
	FromUserID string
	ToUserID   string
	Amount     Money
	Message    string
}

type Notifier interface {
	RemindDebt(ctx context.Context, r Reminder) error
	SettlementCompleted(ctx context.Context, s *Settlement) error
}

// LogNotifier is the default: it just records the event. A real
// deployment swaps in the notification service client.
type LogNotifier struct{}

func (LogNotifier) RemindDebt(_ context.Context, r Reminder) error {
	slog.Info("debt reminder",
		"from", r.FromUserID,
		"to", r.ToUserID,
		"amount", r.Amount.String(),
		"currency", r.Amount.Currency,
	)
	return nil
}

func (LogNotifier) SettlementCompleted(_ context.Context, s *Settlement) error {
	slog.Info("settlement completed",
		"settlement_id", s.ID,
		"payer", s.PayerID,
		"payee", s.PayeeID,
		"amount", s.Amount.String(),
		"currency", s.Amount.Currency,
	)
	return nil
}
