package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"civicdesk/internal/notification/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"

	"github.com/google/uuid"
)

// PostgresStore persists notifications. The visibility predicate is built in
// exactly one place (visibilityClause) and shared by every read and mutation,
// so a recipient can never touch rows outside their scope, even by guessing
// an ID.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed notification store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// visibilityClause returns the WHERE fragment scoping rows to a recipient.
// Admins share the broadcast inbox (recipient_id IS NULL) plus their own
// addressed rows; clients see only rows addressed to them.
func visibilityClause(recipientType id.RecipientType) string {
	if recipientType == id.RecipientAdmin {
		return "recipient_type = 'admin' AND (recipient_id IS NULL OR recipient_id = $1)"
	}
	return "recipient_type = 'client' AND recipient_id = $1"
}

// Persist creates one notification row.
func (s *PostgresStore) Persist(ctx context.Context, n *models.Notification) (id.NotificationID, error) {
	notificationID := id.NewNotificationID()
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return id.NotificationID{}, fmt.Errorf("marshal notification payload: %w", err)
	}
	var recipientID any
	if n.RecipientID != nil {
		recipientID = uuid.UUID(*n.RecipientID)
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `
		INSERT INTO notifications
			(id, recipient_id, recipient_type, type, title, message, payload, priority, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(notificationID),
		recipientID,
		string(n.RecipientType),
		string(n.Type),
		n.Title,
		n.Message,
		payload,
		string(n.Priority),
		createdAt,
	)
	if err != nil {
		return id.NotificationID{}, fmt.Errorf("insert notification: %w", err)
	}
	n.ID = notificationID
	n.CreatedAt = createdAt
	return notificationID, nil
}

// Query returns one page of visible notifications, newest first.
func (s *PostgresStore) Query(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType, page, limit int, unreadOnly bool) ([]*models.Notification, models.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	where := visibilityClause(recipientType)
	if unreadOnly {
		where += " AND read = false"
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM notifications WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, uuid.UUID(recipientID)).Scan(&total); err != nil {
		return nil, models.Page{}, fmt.Errorf("count notifications: %w", err)
	}

	query := `
		SELECT id, recipient_id, recipient_type, type, title, message, payload, priority, read, created_at, read_at
		FROM notifications
		WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(recipientID), limit, (page-1)*limit)
	if err != nil {
		return nil, models.Page{}, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var items []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, models.Page{}, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Page{}, err
	}

	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}
	return items, models.Page{Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}

func scanNotification(rows *sql.Rows) (*models.Notification, error) {
	var (
		n           models.Notification
		nID         uuid.UUID
		recipientID uuid.NullUUID
		payload     []byte
		readAt      sql.NullTime
	)
	err := rows.Scan(&nID, &recipientID, &n.RecipientType, &n.Type, &n.Title, &n.Message,
		&payload, &n.Priority, &n.Read, &n.CreatedAt, &readAt)
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.ID = id.NotificationID(nID)
	if recipientID.Valid {
		rid := id.UserID(recipientID.UUID)
		n.RecipientID = &rid
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal notification payload: %w", err)
		}
	}
	return &n, nil
}

// MarkRead marks one visible notification as read. The visibility predicate
// doubles as the security boundary: rows outside the recipient's scope report
// not found. Re-marking an already read row is a no-op that keeps the
// original read_at.
func (s *PostgresStore) MarkRead(ctx context.Context, notificationID id.NotificationID, recipientID id.UserID, recipientType id.RecipientType) error {
	query := `
		UPDATE notifications
		SET read = true, read_at = COALESCE(read_at, $3)
		WHERE ` + visibilityClause(recipientType) + ` AND id = $2
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(recipientID), uuid.UUID(notificationID), time.Now())
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// MarkAllRead marks every visible unread notification as read.
func (s *PostgresStore) MarkAllRead(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) (int64, error) {
	query := `
		UPDATE notifications
		SET read = true, read_at = $2
		WHERE ` + visibilityClause(recipientType) + ` AND read = false
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(recipientID), time.Now())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// UnreadCount counts visible unread notifications.
func (s *PostgresStore) UnreadCount(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) (int64, error) {
	query := "SELECT COUNT(*) FROM notifications WHERE " + visibilityClause(recipientType) + " AND read = false"
	var count int64
	if err := s.db.QueryRowContext(ctx, query, uuid.UUID(recipientID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// RecentExists reports whether an identical (recipient, type, message) row
// was created at or after since.
func (s *PostgresStore) RecentExists(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType, notifType models.Type, message string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE recipient_id = $1 AND recipient_type = $2 AND type = $3 AND message = $4 AND created_at >= $5
		)
	`
	var exists bool
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(recipientID), string(recipientType), string(notifType), message, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent notification: %w", err)
	}
	return exists, nil
}
