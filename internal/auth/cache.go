package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProfileCache keeps resolved profiles in Redis so that a role lookup does not hit the
// identity provider on every write request.
type ProfileCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewProfileCache creates a ProfileCache.
func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, prefix: "auth:profile:", ttl: ttl}
}

// Get returns the cached profile and whether it was found.
func (c *ProfileCache) Get(ctx context.Context, userID string) (*Profile, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal: %w", err)
	}
	return &p, true, nil
}

// Set stores p for the cache TTL.
func (c *ProfileCache) Set(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+p.UserID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
