package adapters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupGuard answers first-seen questions with SET NX: the first caller
// for a key within the window claims it, later callers see a duplicate. The
// key expires on its own, so suppression never needs cleanup.
type RedisDedupGuard struct {
	client redis.Cmdable
}

// NewRedisDedupGuard constructs the guard on an existing Redis client.
func NewRedisDedupGuard(client redis.Cmdable) *RedisDedupGuard {
	return &RedisDedupGuard{client: client}
}

// FirstSeen reports whether key was claimed within the window. An error means
// Redis is unavailable; callers fall back to their slow path.
func (g *RedisDedupGuard) FirstSeen(ctx context.Context, key string, window time.Duration) (bool, error) {
	claimed, err := g.client.SetNX(ctx, key, 1, window).Result()
	if err != nil {
		return false, err
	}
	return claimed, nil
}
