package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	routerdomain "github.com/zerocost/portal/internal/providers/router/domain"
)

const defaultUsageTTL = 45 * time.Second

// UsageCache stores per-key router usage snapshots. A nil client makes
// every lookup a miss and every store a no-op.
type UsageCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUsageCache(client *redis.Client) *UsageCache {
	return &UsageCache{client: client, ttl: defaultUsageTTL}
}

func (c *UsageCache) Get(ctx context.Context, zcKey string) (*routerdomain.Usage, bool) {
	if c == nil || c.client == nil || zcKey == "" {
		return nil, false
	}

	raw, err := c.client.Get(ctx, usageKey(zcKey)).Bytes()
	if err != nil {
		return nil, false
	}

	var usage routerdomain.Usage
	if err := json.Unmarshal(raw, &usage); err != nil {
		return nil, false
	}
	return &usage, true
}

func (c *UsageCache) Set(ctx context.Context, zcKey string, usage *routerdomain.Usage) {
	if c == nil || c.client == nil || zcKey == "" || usage == nil {
		return
	}

	raw, err := json.Marshal(usage)
	if err != nil {
		return
	}
	c.client.Set(ctx, usageKey(zcKey), raw, c.ttl)
}

func usageKey(zcKey string) string {
	return "usage:zc:" + zcKey
}
