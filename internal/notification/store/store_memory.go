package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"civicdesk/internal/notification/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// MemoryStore is the in-memory notification store used in tests and local
// runs. It applies the same visibility predicate as the Postgres store.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[id.NotificationID]*models.Notification
}

// NewMemory constructs an empty in-memory notification store.
func NewMemory() *MemoryStore {
	return &MemoryStore{rows: make(map[id.NotificationID]*models.Notification)}
}

// visible mirrors visibilityClause in the Postgres store.
func visible(n *models.Notification, recipientID id.UserID, recipientType id.RecipientType) bool {
	if n.RecipientType != recipientType {
		return false
	}
	if recipientType == id.RecipientAdmin {
		return n.RecipientID == nil || *n.RecipientID == recipientID
	}
	return n.RecipientID != nil && *n.RecipientID == recipientID
}

// Persist creates one notification row.
func (s *MemoryStore) Persist(ctx context.Context, n *models.Notification) (id.NotificationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notificationID := id.NewNotificationID()
	cp := *n
	cp.ID = notificationID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.rows[notificationID] = &cp
	n.ID = notificationID
	n.CreatedAt = cp.CreatedAt
	return notificationID, nil
}

// Query returns one page of visible notifications, newest first.
func (s *MemoryStore) Query(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType, page, limit int, unreadOnly bool) ([]*models.Notification, models.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Notification
	for _, n := range s.rows {
		if !visible(n, recipientID, recipientType) {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}

	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], models.Page{Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}

// MarkRead marks one visible notification as read. Re-marking an already read
// row is a no-op.
func (s *MemoryStore) MarkRead(ctx context.Context, notificationID id.NotificationID, recipientID id.UserID, recipientType id.RecipientType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[notificationID]
	if !ok || !visible(n, recipientID, recipientType) {
		return sentinel.ErrNotFound
	}
	if n.Read {
		return nil
	}
	now := time.Now()
	n.Read = true
	n.ReadAt = &now
	return nil
}

// MarkAllRead marks every visible unread notification as read.
func (s *MemoryStore) MarkAllRead(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var changed int64
	for _, n := range s.rows {
		if visible(n, recipientID, recipientType) && !n.Read {
			n.Read = true
			n.ReadAt = &now
			changed++
		}
	}
	return changed, nil
}

// UnreadCount counts visible unread notifications.
func (s *MemoryStore) UnreadCount(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.rows {
		if visible(n, recipientID, recipientType) && !n.Read {
			count++
		}
	}
	return count, nil
}

// RecentExists reports whether an identical (recipient, type, message) row
// was created at or after since.
func (s *MemoryStore) RecentExists(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType, notifType models.Type, message string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.rows {
		if n.RecipientID == nil || *n.RecipientID != recipientID {
			continue
		}
		if n.RecipientType != recipientType || n.Type != notifType || n.Message != message {
			continue
		}
		if !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}
