package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier alerts administrators about terminal backup and restore failures.
// Best-effort: implementations log their own failures and never return them.
// The production mail transport lives outside this module; the daemon wires
// in whatever implementation the deployment provides.
type Notifier interface {
	NotifyFailure(ctx context.Context, operation string, subject string, err error)
}

// LogNotifier reports failures through the logger only.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) NotifyFailure(_ context.Context, operation string, subject string, err error) {
	n.Logger.Error().Err(err).
		Str("operation", operation).
		Str("subject", subject).
		Msg("notifying administrators of failure")
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) NotifyFailure(context.Context, string, string, error) {}
