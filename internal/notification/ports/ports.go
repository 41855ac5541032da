// Package ports defines shared interfaces for the notification module.
// Interfaces live here when consumed by multiple packages (dispatcher,
// handler, adapters) to avoid duplication.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	notifmodels "civicdesk/internal/notification/models"
	reqmodels "civicdesk/internal/request/models"
	id "civicdesk/pkg/domain"
)

// Store persists notifications and answers role-scoped queries. Every method
// that reads or mutates on behalf of a recipient applies the same visibility
// predicate: admins see admin rows that are broadcast or addressed to them,
// clients see only client rows addressed to them.
type Store interface {
	// Persist creates one notification row and returns its ID.
	Persist(ctx context.Context, n *notifmodels.Notification) (id.NotificationID, error)

	// Query returns one page of visible notifications, newest first.
	Query(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType, page, limit int, unreadOnly bool) ([]*notifmodels.Notification, notifmodels.Page, error)

	// MarkRead marks one visible notification as read.
	MarkRead(ctx context.Context, notificationID id.NotificationID, recipientID id.UserID, recipientType id.RecipientType) error

	// MarkAllRead marks every visible unread notification as read and
	// returns how many rows changed.
	MarkAllRead(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) (int64, error)

	// UnreadCount counts visible unread notifications.
	UnreadCount(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) (int64, error)

	// RecentExists reports whether an identical (recipient, type, message)
	// row was created at or after since. Drives duplicate suppression.
	RecentExists(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType, notifType notifmodels.Type, message string, since time.Time) (bool, error)
}

// Pusher delivers a payload to a recipient's live connections. Returns the
// number of channels written; dead channels are pruned internally and never
// surface as errors.
type Pusher interface {
	SendToRecipient(recipientID id.UserID, event string, payload any) int
}

// Contact is the delivery addressing for the best-effort side channels.
type Contact struct {
	Email string
	Phone string
}

// Directory resolves recipients: which admins are active, and how to reach an
// account off-platform.
type Directory interface {
	ListActiveAdmins(ctx context.Context) ([]id.UserID, error)
	GetContact(ctx context.Context, userID id.UserID) (*Contact, error)
}

// RequestReader loads the request a notification is about.
type RequestReader interface {
	GetRequest(ctx context.Context, requestID id.RequestID) (*reqmodels.DocumentRequest, error)
}

// EmailSender delivers one email. May fail; callers isolate the failure.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) (messageID string, err error)
}

// SMSResult reports an SMS delivery attempt. The sender never returns a Go
// error; failures are data.
type SMSResult struct {
	Success bool
	Error   string
}

// SMSSender delivers one message to one or more phone numbers.
type SMSSender interface {
	Send(ctx context.Context, recipients []string, message string) SMSResult
}

// DedupGuard is an optional fast path for duplicate suppression (Redis SET NX
// in production). FirstSeen returns true when the key was not seen within the
// window. Failures fall back to the store query.
type DedupGuard interface {
	FirstSeen(ctx context.Context, key string, window time.Duration) (bool, error)
}
