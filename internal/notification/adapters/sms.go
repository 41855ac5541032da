package adapters

import (
	"context"
	"log/slog"

	"civicdesk/internal/notification/ports"
)

// LogSMSSender records outbound SMS to the log instead of a gateway.
type LogSMSSender struct {
	logger *slog.Logger
}

// NewLogSMSSender constructs the logging SMS sender.
func NewLogSMSSender(logger *slog.Logger) *LogSMSSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSMSSender{logger: logger}
}

// Send logs the message for every recipient and always reports success.
func (s *LogSMSSender) Send(ctx context.Context, recipients []string, message string) ports.SMSResult {
	s.logger.InfoContext(ctx, "sms dispatched",
		"recipients", len(recipients),
		"message_bytes", len(message),
	)
	return ports.SMSResult{Success: true}
}
