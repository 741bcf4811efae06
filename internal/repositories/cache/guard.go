package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RequestGuard remembers settlement request IDs so a request is dispatched at most once.
type RequestGuard struct {
	client setNXer
	ttl    time.Duration
}

func NewRequestGuard(client *redis.Client, ttl time.Duration) *RequestGuard {
	return &RequestGuard{client: client, ttl: ttl}
}

// Claim returns true the first time requestID is seen within the TTL.
func (g *RequestGuard) Claim(ctx context.Context, requestID string) (bool, error) {
	key := GenerateKey(EntitySettlement, KeyRequest, requestID)
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim request %s: %w", requestID, err)
	}
	return ok, nil
}
