package domain

import (
	"fmt"
)

// RecipientType distinguishes the two notification audiences. Admins share a
// broadcast inbox; clients only ever see rows addressed to them.
type RecipientType string

const (
	RecipientAdmin  RecipientType = "admin"
	RecipientClient RecipientType = "client"
)

// ParseRecipientType validates and returns a RecipientType.
func ParseRecipientType(s string) (RecipientType, error) {
	switch RecipientType(s) {
	case RecipientAdmin, RecipientClient:
		return RecipientType(s), nil
	default:
		return "", fmt.Errorf("unknown recipient type: %s", s)
	}
}

// String returns the string representation of the recipient type.
func (t RecipientType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known recipient type.
func (t RecipientType) IsValid() bool {
	return t == RecipientAdmin || t == RecipientClient
}
