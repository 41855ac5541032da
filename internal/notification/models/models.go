// Package models defines notifications and their addressing. A row with a nil
// recipient ID is a broadcast to every member of its recipient type (admins
// only in practice); addressed rows belong to exactly one account.
package models

import (
	"time"

	id "civicdesk/pkg/domain"
)

// Type tags the business event behind a notification.
type Type string

const (
	TypeNewRequest   Type = "new_request"
	TypeStatusChange Type = "status_change"
	TypeCancellation Type = "request_cancelled"
)

// Priority orders notifications in inboxes and push clients.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is one persisted inbox row. Mutated exactly once per recipient
// action (marked read); retention and deletion are an external job.
type Notification struct {
	ID            id.NotificationID `json:"id"`
	RecipientID   *id.UserID        `json:"recipient_id,omitempty"` // nil means broadcast to all of RecipientType
	RecipientType id.RecipientType  `json:"recipient_type"`
	Type          Type              `json:"type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Payload       map[string]any    `json:"payload,omitempty"`
	Priority      Priority          `json:"priority"`
	Read          bool              `json:"read"`
	CreatedAt     time.Time         `json:"created_at"`
	ReadAt        *time.Time        `json:"read_at,omitempty"`
}

// Page describes one page of a notification query.
type Page struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// recipientKind tags the Recipient variant.
type recipientKind int

const (
	kindSpecificAdmin recipientKind = iota
	kindAllAdmins
	kindSpecificClient
)

// Recipient is the explicit dispatch target variant:
// SpecificAdmin(id) | AllAdmins | SpecificClient(id).
// The store's visibility predicate is derived from this, never from scattered
// nil checks.
type Recipient struct {
	kind   recipientKind
	userID id.UserID
}

// SpecificAdmin addresses one admin account.
func SpecificAdmin(adminID id.UserID) Recipient {
	return Recipient{kind: kindSpecificAdmin, userID: adminID}
}

// AllAdmins addresses every active admin. The dispatcher expands this into
// one independent notification per admin so read-state stays per-recipient.
func AllAdmins() Recipient {
	return Recipient{kind: kindAllAdmins}
}

// SpecificClient addresses one client account. Clients have no broadcast
// channel.
func SpecificClient(clientID id.UserID) Recipient {
	return Recipient{kind: kindSpecificClient, userID: clientID}
}

// RecipientType returns the audience of the recipient.
func (r Recipient) RecipientType() id.RecipientType {
	if r.kind == kindSpecificClient {
		return id.RecipientClient
	}
	return id.RecipientAdmin
}

// UserID returns the addressed account and whether one exists (false for
// AllAdmins).
func (r Recipient) UserID() (id.UserID, bool) {
	if r.kind == kindAllAdmins {
		return id.UserID{}, false
	}
	return r.userID, true
}

// IsBroadcast reports whether the recipient expands to a whole audience.
func (r Recipient) IsBroadcast() bool {
	return r.kind == kindAllAdmins
}
