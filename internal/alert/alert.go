package alert

import (
	"context"
	"log/slog"

	"github.com/votegate/votegate/internal/fraud"
)

// Notifier pushes fraud alerts to downstream monitoring systems so booth
// supervisors can react while the voter is still at the terminal.
type Notifier interface {
	FraudDetected(ctx context.Context, event fraud.Event) error
}

// LoggerNotifier is a stub implementation that writes alerts to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging alert notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// FraudDetected writes the alert to the structured logger.
func (n *LoggerNotifier) FraudDetected(_ context.Context, event fraud.Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Warn("fraud detected",
		"kind", string(event.Kind),
		"voter_id", event.VoterID,
		"booth_id", event.BoothID,
		"details", event.Details,
	)
	return nil
}
