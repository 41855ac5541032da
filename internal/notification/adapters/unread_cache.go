package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"civicdesk/internal/notification/models"
	"civicdesk/internal/notification/ports"
	id "civicdesk/pkg/domain"
)

// unreadCacheTTL bounds staleness if an invalidation is lost.
const unreadCacheTTL = 5 * time.Minute

// CachedStore decorates a notification store with a Redis unread-count cache.
// The badge count is the hottest read in the system and tolerates a stale
// answer; every write that can change it drops the cached value. Redis being
// down degrades to plain store reads, never to an error.
type CachedStore struct {
	ports.Store
	client redis.Cmdable
	logger *slog.Logger
}

// NewCachedStore wraps store with the unread-count cache.
func NewCachedStore(store ports.Store, client redis.Cmdable, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{Store: store, client: client, logger: logger}
}

func unreadKey(recipientID id.UserID, recipientType id.RecipientType) string {
	return fmt.Sprintf("notif:unread:%s:%s", recipientType, recipientID)
}

// UnreadCount serves from the cache when possible and repopulates it on miss.
func (c *CachedStore) UnreadCount(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) (int64, error) {
	key := unreadKey(recipientID, recipientType)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if count, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
			return count, nil
		}
	} else if err != redis.Nil {
		c.logger.WarnContext(ctx, "unread cache read failed", "error", err)
	}

	count, err := c.Store.UnreadCount(ctx, recipientID, recipientType)
	if err != nil {
		return 0, err
	}
	if serr := c.client.Set(ctx, key, count, unreadCacheTTL).Err(); serr != nil {
		c.logger.WarnContext(ctx, "unread cache write failed", "error", serr)
	}
	return count, nil
}

// Persist writes the row and invalidates the recipient's badge count.
func (c *CachedStore) Persist(ctx context.Context, n *models.Notification) (id.NotificationID, error) {
	notificationID, err := c.Store.Persist(ctx, n)
	if err != nil {
		return notificationID, err
	}
	if n.RecipientID != nil {
		c.invalidate(ctx, *n.RecipientID, n.RecipientType)
	}
	return notificationID, nil
}

// MarkRead marks the row and invalidates the recipient's badge count.
func (c *CachedStore) MarkRead(ctx context.Context, notificationID id.NotificationID, recipientID id.UserID, recipientType id.RecipientType) error {
	if err := c.Store.MarkRead(ctx, notificationID, recipientID, recipientType); err != nil {
		return err
	}
	c.invalidate(ctx, recipientID, recipientType)
	return nil
}

// MarkAllRead marks the rows and invalidates the recipient's badge count.
func (c *CachedStore) MarkAllRead(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) (int64, error) {
	changed, err := c.Store.MarkAllRead(ctx, recipientID, recipientType)
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		c.invalidate(ctx, recipientID, recipientType)
	}
	return changed, nil
}

func (c *CachedStore) invalidate(ctx context.Context, recipientID id.UserID, recipientType id.RecipientType) {
	if err := c.client.Del(ctx, unreadKey(recipientID, recipientType)).Err(); err != nil {
		c.logger.WarnContext(ctx, "unread cache invalidation failed", "error", err)
	}
}
