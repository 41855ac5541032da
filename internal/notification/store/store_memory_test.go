package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/notification/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// =============================================================================
// Notification Store Test Suite
// =============================================================================
// The visibility predicate is the security boundary of the whole notification
// subsystem, so both its read and mutation sides are tested here against the
// in-memory implementation (the Postgres implementation shares the predicate
// logic and is covered by the integration suite).

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context

	adminA  id.UserID
	adminB  id.UserID
	clientA id.UserID
	clientB id.UserID
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
	s.adminA = id.NewUserID()
	s.adminB = id.NewUserID()
	s.clientA = id.NewUserID()
	s.clientB = id.NewUserID()
}

func (s *MemoryStoreSuite) persist(recipientID *id.UserID, recipientType id.RecipientType, message string) id.NotificationID {
	n := &models.Notification{
		RecipientID:   recipientID,
		RecipientType: recipientType,
		Type:          models.TypeStatusChange,
		Title:         "Request update",
		Message:       message,
		Priority:      models.PriorityNormal,
	}
	notificationID, err := s.store.Persist(s.ctx, n)
	s.Require().NoError(err)
	return notificationID
}

func (s *MemoryStoreSuite) TestQueryVisibility() {
	s.persist(&s.adminA, id.RecipientAdmin, "for admin A")
	s.persist(&s.adminB, id.RecipientAdmin, "for admin B")
	s.persist(nil, id.RecipientAdmin, "admin broadcast")
	s.persist(&s.clientA, id.RecipientClient, "for client A")
	s.persist(&s.clientB, id.RecipientClient, "for client B")

	s.Run("admin sees broadcast plus own rows only", func() {
		items, page, err := s.store.Query(s.ctx, s.adminA, id.RecipientAdmin, 1, 20, false)
		s.Require().NoError(err)
		s.Len(items, 2)
		s.EqualValues(2, page.Total)
		for _, n := range items {
			s.True(n.RecipientID == nil || *n.RecipientID == s.adminA,
				"admin A must never see admin B's rows")
		}
	})

	s.Run("client sees only rows addressed to them", func() {
		items, _, err := s.store.Query(s.ctx, s.clientA, id.RecipientClient, 1, 20, false)
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Equal("for client A", items[0].Message)
	})

	s.Run("client never sees the admin broadcast", func() {
		items, _, err := s.store.Query(s.ctx, s.clientB, id.RecipientClient, 1, 20, false)
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Equal("for client B", items[0].Message)
	})
}

func (s *MemoryStoreSuite) TestQueryPagination() {
	for i := 0; i < 5; i++ {
		s.persist(&s.clientA, id.RecipientClient, "msg")
	}

	items, page, err := s.store.Query(s.ctx, s.clientA, id.RecipientClient, 1, 2, false)
	s.Require().NoError(err)
	s.Len(items, 2)
	s.EqualValues(5, page.Total)
	s.EqualValues(3, page.TotalPages)

	items, _, err = s.store.Query(s.ctx, s.clientA, id.RecipientClient, 3, 2, false)
	s.Require().NoError(err)
	s.Len(items, 1)
}

func (s *MemoryStoreSuite) TestQueryUnreadOnly() {
	readID := s.persist(&s.clientA, id.RecipientClient, "already read")
	s.persist(&s.clientA, id.RecipientClient, "still unread")
	s.Require().NoError(s.store.MarkRead(s.ctx, readID, s.clientA, id.RecipientClient))

	items, _, err := s.store.Query(s.ctx, s.clientA, id.RecipientClient, 1, 20, true)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal("still unread", items[0].Message)
}

func (s *MemoryStoreSuite) TestMarkRead() {
	s.Run("recipient marks own row read", func() {
		notificationID := s.persist(&s.clientA, id.RecipientClient, "own row")
		s.Require().NoError(s.store.MarkRead(s.ctx, notificationID, s.clientA, id.RecipientClient))

		items, _, err := s.store.Query(s.ctx, s.clientA, id.RecipientClient, 1, 20, false)
		s.Require().NoError(err)
		for _, n := range items {
			if n.ID == notificationID {
				s.True(n.Read)
				s.NotNil(n.ReadAt)
			}
		}
	})

	s.Run("guessing another recipient's id is not found", func() {
		notificationID := s.persist(&s.clientA, id.RecipientClient, "private")
		err := s.store.MarkRead(s.ctx, notificationID, s.clientB, id.RecipientClient)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("client cannot mark an admin row by guessing its id", func() {
		notificationID := s.persist(&s.adminA, id.RecipientAdmin, "admin only")
		err := s.store.MarkRead(s.ctx, notificationID, s.clientA, id.RecipientClient)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("admin marks a broadcast row read", func() {
		notificationID := s.persist(nil, id.RecipientAdmin, "broadcast")
		s.NoError(s.store.MarkRead(s.ctx, notificationID, s.adminA, id.RecipientAdmin))
	})

	s.Run("retrying a mark on an already read row is a no-op", func() {
		notificationID := s.persist(&s.clientA, id.RecipientClient, "retried")
		s.Require().NoError(s.store.MarkRead(s.ctx, notificationID, s.clientA, id.RecipientClient))

		items, _, err := s.store.Query(s.ctx, s.clientA, id.RecipientClient, 1, 100, false)
		s.Require().NoError(err)
		var firstReadAt time.Time
		for _, n := range items {
			if n.ID == notificationID {
				s.Require().NotNil(n.ReadAt)
				firstReadAt = *n.ReadAt
			}
		}

		s.Require().NoError(s.store.MarkRead(s.ctx, notificationID, s.clientA, id.RecipientClient))

		items, _, err = s.store.Query(s.ctx, s.clientA, id.RecipientClient, 1, 100, false)
		s.Require().NoError(err)
		for _, n := range items {
			if n.ID == notificationID {
				s.Require().NotNil(n.ReadAt)
				s.Equal(firstReadAt, *n.ReadAt)
			}
		}
	})
}

func (s *MemoryStoreSuite) TestMarkAllReadAndUnreadCount() {
	s.persist(&s.adminA, id.RecipientAdmin, "one")
	s.persist(nil, id.RecipientAdmin, "two")
	s.persist(&s.adminB, id.RecipientAdmin, "other admin")

	count, err := s.store.UnreadCount(s.ctx, s.adminA, id.RecipientAdmin)
	s.Require().NoError(err)
	s.EqualValues(2, count)

	changed, err := s.store.MarkAllRead(s.ctx, s.adminA, id.RecipientAdmin)
	s.Require().NoError(err)
	s.EqualValues(2, changed)

	count, err = s.store.UnreadCount(s.ctx, s.adminA, id.RecipientAdmin)
	s.Require().NoError(err)
	s.EqualValues(0, count)

	// Admin B's addressed row must be untouched.
	count, err = s.store.UnreadCount(s.ctx, s.adminB, id.RecipientAdmin)
	s.Require().NoError(err)
	s.EqualValues(1, count)
}

func (s *MemoryStoreSuite) TestRecentExists() {
	s.persist(&s.clientA, id.RecipientClient, "duplicate candidate")

	exists, err := s.store.RecentExists(s.ctx, s.clientA, id.RecipientClient,
		models.TypeStatusChange, "duplicate candidate", time.Now().Add(-10*time.Second))
	s.Require().NoError(err)
	s.True(exists)

	exists, err = s.store.RecentExists(s.ctx, s.clientA, id.RecipientClient,
		models.TypeStatusChange, "different message", time.Now().Add(-10*time.Second))
	s.Require().NoError(err)
	s.False(exists)

	// A window entirely in the future excludes the row.
	exists, err = s.store.RecentExists(s.ctx, s.clientA, id.RecipientClient,
		models.TypeStatusChange, "duplicate candidate", time.Now().Add(time.Minute))
	s.Require().NoError(err)
	s.False(exists)
}
