// Package domain holds strongly typed identifiers shared across modules.
// Each ID wraps a UUID so the compiler keeps request, user, and notification
// identifiers from being mixed up at call sites.
package domain

import (
	"github.com/google/uuid"

	dErrors "civicdesk/pkg/domain-errors"
)

type (
	// RequestID identifies a document request.
	RequestID uuid.UUID

	// UserID identifies a recipient (client or admin account).
	UserID uuid.UUID

	// NotificationID identifies a persisted notification row.
	NotificationID uuid.UUID

	// PaymentMethodID identifies a configured payment method.
	PaymentMethodID uuid.UUID

	// ConnectionID identifies a live push connection within the registry.
	ConnectionID uuid.UUID
)

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. Parsing happens at trust boundaries only.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseRequestID validates and returns a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(parsed), nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// ParseNotificationID validates and returns a NotificationID.
func ParseNotificationID(s string) (NotificationID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return NotificationID{}, err
	}
	return NotificationID(parsed), nil
}

// ParsePaymentMethodID validates and returns a PaymentMethodID.
func ParsePaymentMethodID(s string) (PaymentMethodID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return PaymentMethodID{}, err
	}
	return PaymentMethodID(parsed), nil
}

// NewRequestID returns a fresh random RequestID.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewNotificationID returns a fresh random NotificationID.
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

// NewPaymentMethodID returns a fresh random PaymentMethodID.
func NewPaymentMethodID() PaymentMethodID { return PaymentMethodID(uuid.New()) }

// NewConnectionID returns a fresh random ConnectionID.
func NewConnectionID() ConnectionID { return ConnectionID(uuid.New()) }

func (id RequestID) String() string        { return uuid.UUID(id).String() }
func (id UserID) String() string           { return uuid.UUID(id).String() }
func (id NotificationID) String() string   { return uuid.UUID(id).String() }
func (id PaymentMethodID) String() string  { return uuid.UUID(id).String() }
func (id ConnectionID) String() string     { return uuid.UUID(id).String() }

func (id RequestID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PaymentMethodID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ConnectionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// Wrapping uuid.UUID in a defined type drops its method set, so text
// marshaling is restated here to keep IDs rendering as canonical UUID strings
// in JSON and logs.

func (id RequestID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)          { return []byte(id.String()), nil }
func (id NotificationID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id PaymentMethodID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ConnectionID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *RequestID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = RequestID(parsed)
	return nil
}

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

func (id *NotificationID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = NotificationID(parsed)
	return nil
}
