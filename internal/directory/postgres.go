// Package directory resolves accounts for notification addressing: the active
// admin roster and off-platform contact details. It reads the users table
// owned by the account subsystem and never writes it.
package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"civicdesk/internal/notification/ports"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// PostgresDirectory reads recipients from the users table.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgres constructs the Postgres-backed directory.
func NewPostgres(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// ListActiveAdmins returns every admin account that can receive notifications.
func (d *PostgresDirectory) ListActiveAdmins(ctx context.Context) ([]id.UserID, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id FROM users
		WHERE role = 'admin' AND active = TRUE
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []id.UserID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		admins = append(admins, id.UserID(raw))
	}
	return admins, rows.Err()
}

// GetContact returns the email and phone on file for an account.
func (d *PostgresDirectory) GetContact(ctx context.Context, userID id.UserID) (*ports.Contact, error) {
	var contact ports.Contact
	var phone sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT email, phone FROM users WHERE id = $1`,
		uuid.UUID(userID),
	).Scan(&contact.Email, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	contact.Phone = phone.String
	return &contact, nil
}
