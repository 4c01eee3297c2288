package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	appchat "nestly/internal/app/services/chat"
)

// UnreadCache keeps short-lived per-user unread totals so the badge endpoint
// does not rescan the user's conversations on every poll.
type UnreadCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUnreadCache connects to Redis and verifies the connection.
func NewUnreadCache(ctx context.Context, redisURL string, ttl time.Duration) (*UnreadCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &UnreadCache{client: client, ttl: ttl}, nil
}

func (c *UnreadCache) Close() error {
	return c.client.Close()
}

func (c *UnreadCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func unreadKey(userID string) string {
	return fmt.Sprintf("user:%s:unread", userID)
}

// GetUnreadTotal returns the cached total, with ok=false on a miss.
func (c *UnreadCache) GetUnreadTotal(ctx context.Context, userID string) (int, bool, error) {
	raw, err := c.client.Get(ctx, unreadKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	total, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, nil
	}
	return total, true, nil
}

// SetUnreadTotal stores the total under the cache TTL.
func (c *UnreadCache) SetUnreadTotal(ctx context.Context, userID string, total int) error {
	return c.client.Set(ctx, unreadKey(userID), strconv.Itoa(total), c.ttl).Err()
}

// InvalidateUnreadTotal drops the cached total after sends and read marks.
func (c *UnreadCache) InvalidateUnreadTotal(ctx context.Context, userID string) error {
	return c.client.Del(ctx, unreadKey(userID)).Err()
}

var _ appchat.BadgeCache = (*UnreadCache)(nil)
