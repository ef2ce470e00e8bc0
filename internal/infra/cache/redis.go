// Package cache mirrors the lot into Redis for fast reads by dashboards and
// other instances. The engine stays the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/platform/logger"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// RedisClient is an interface for Redis operations.
// This allows for easy mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values ...interface{}) error
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// DefaultExpiration keeps a mirrored lot alive when the server stops updating it.
const DefaultExpiration = 15 * time.Minute

// LotCache provides fast access to lot snapshots.
type LotCache struct {
	client     RedisClient
	prefix     string
	expiration time.Duration
	logger     *logger.Logger
}

// NewLotCache creates a new lot cache. A zero expiration uses DefaultExpiration.
func NewLotCache(client RedisClient, prefix string, expiration time.Duration, log *logger.Logger) *LotCache {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	return &LotCache{
		client:     client,
		prefix:     prefix,
		expiration: expiration,
		logger:     log.With("component", "cache"),
	}
}

// SetLot caches the full snapshot and the per-spot status hash.
func (c *LotCache) SetLot(ctx context.Context, snap engine.LotSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal lot snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.lotKey(snap.LotID), data, c.expiration); err != nil {
		return fmt.Errorf("failed to cache lot snapshot: %w", err)
	}

	values := make([]interface{}, 0, len(snap.Spots)*2)
	for _, s := range snap.Spots {
		values = append(values, s.ID, string(s.Status))
	}
	if len(values) == 0 {
		return nil
	}
	key := c.spotsKey(snap.LotID)
	if err := c.client.HSet(ctx, key, values...); err != nil {
		return fmt.Errorf("failed to cache spot statuses: %w", err)
	}
	return c.client.Expire(ctx, key, c.expiration)
}

// GetLot retrieves the cached snapshot of a lot.
func (c *LotCache) GetLot(ctx context.Context, lotID string) (*engine.LotSnapshot, error) {
	data, err := c.client.Get(ctx, c.lotKey(lotID))
	if err != nil {
		return nil, err
	}

	var snap engine.LotSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lot snapshot: %w", err)
	}
	return &snap, nil
}

// GetStatuses retrieves the cached status of every spot in a lot.
func (c *LotCache) GetStatuses(ctx context.Context, lotID string) (map[string]parking.Status, error) {
	data, err := c.client.HGetAll(ctx, c.spotsKey(lotID))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrCacheMiss
	}

	statuses := make(map[string]parking.Status, len(data))
	for id, st := range data {
		statuses[id] = parking.Status(st)
	}
	return statuses, nil
}

// InvalidateLot removes all cached state for a lot.
func (c *LotCache) InvalidateLot(ctx context.Context, lotID string) error {
	return c.client.Del(ctx, c.lotKey(lotID), c.spotsKey(lotID))
}

// OnLotUpdate mirrors every lot change. Failures are logged; the cache is
// never allowed to disturb the engine.
func (c *LotCache) OnLotUpdate(snap engine.LotSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.SetLot(ctx, snap); err != nil {
		c.logger.Warn("failed to mirror lot", "lot", snap.LotID, "error", err)
	}
}

// lotKey generates the Redis key for the full lot snapshot.
func (c *LotCache) lotKey(lotID string) string {
	return fmt.Sprintf("%slot:%s", c.prefix, lotID)
}

// spotsKey generates the Redis key for the spot status hash.
func (c *LotCache) spotsKey(lotID string) string {
	return fmt.Sprintf("%slot:%s:spots", c.prefix, lotID)
}
