// Package models defines the document request aggregate and its audit trail.
package models

import (
	"fmt"
	"time"

	id "civicdesk/pkg/domain"
)

// Status is the lifecycle state of a document request. The numeric tags are
// stable identifiers persisted in the database and must never be renumbered.
type Status int

const (
	StatusPending          Status = 1
	StatusUnderReview      Status = 2
	StatusApproved         Status = 4
	StatusProcessing       Status = 5
	StatusReadyForPickup   Status = 6
	StatusCompleted        Status = 7
	StatusCancelled        Status = 8
	StatusRejected         Status = 9
	StatusPaymentConfirmed Status = 11
)

var statusNames = map[Status]string{
	StatusPending:          "pending",
	StatusUnderReview:      "under_review",
	StatusApproved:         "approved",
	StatusProcessing:       "processing",
	StatusReadyForPickup:   "ready_for_pickup",
	StatusCompleted:        "completed",
	StatusCancelled:        "cancelled",
	StatusRejected:         "rejected",
	StatusPaymentConfirmed: "payment_confirmed",
}

// ParseStatus maps a human-readable status name to its Status value.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status: %s", name)
}

// String returns the canonical name, or a numeric fallback for unknown tags.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsValid reports whether s is a member of the status enum.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether s accepts zero outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Priority orders requests in staff queues and drives notification priority.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

// PaymentStatus tracks whether the request's fee has cleared. Owned by the
// payment webhook flow; this module only reads it.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// DocumentRequest is a citizen's application for a civic document. The request
// number is immutable once assigned; status only changes through the lifecycle
// service. Requests are never deleted, terminal states are soft.
type DocumentRequest struct {
	ID              id.RequestID
	RequestNumber   string
	ClientID        id.UserID
	DocumentType    string
	Status          Status
	Priority        Priority
	PaymentMethodID id.PaymentMethodID
	PaymentStatus   PaymentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentMethod describes how a request is paid. IsOnline is the authoritative
// signal for gateway-routed payments; methods with IsOnline=false are cash-like
// and may skip the payment_confirmed step.
type PaymentMethod struct {
	ID       id.PaymentMethodID
	Code     string
	Name     string
	IsOnline bool
}

// IsCash reports whether the method bypasses the online payment gateway.
func (m PaymentMethod) IsCash() bool {
	return !m.IsOnline
}

// TransitionRecord is one append-only audit row per status change. OldStatus
// is nil for the creation event, ActorID is nil for system-initiated changes
// (e.g. the payment webhook). Written in the same transaction as the status
// update; never mutated or deleted.
type TransitionRecord struct {
	ID        int64
	RequestID id.RequestID
	OldStatus *Status
	NewStatus Status
	ActorID   *id.UserID
	Reason    string
	CreatedAt time.Time
}
