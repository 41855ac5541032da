// Package adapters provides concrete implementations of the notification
// ports: side-channel senders and the Redis-backed fast paths.
package adapters

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogEmailSender records outbound email to the log instead of a provider.
// Used in development and as the default until an SMTP or API sender is wired.
type LogEmailSender struct {
	logger *slog.Logger
}

// NewLogEmailSender constructs the logging email sender.
func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmailSender{logger: logger}
}

// Send logs the email and returns a synthetic message ID.
func (s *LogEmailSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error) {
	messageID := uuid.NewString()
	s.logger.InfoContext(ctx, "email dispatched",
		"to", to,
		"subject", subject,
		"message_id", messageID,
		"body_bytes", len(textBody),
	)
	return messageID, nil
}
