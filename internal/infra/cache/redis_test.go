package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/lot"
	"github.com/parkpilot/server/internal/platform/logger"
)

// memRedis is an in-memory RedisClient.
type memRedis struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration
	failSet bool
}

func newMemRedis() *memRedis {
	return &memRedis{
		strings: map[string]string{},
		hashes:  map[string]map[string]string{},
		ttls:    map[string]time.Duration{},
	}
}

func (m *memRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strings[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("connection refused")
	}
	switch v := value.(type) {
	case []byte:
		m.strings[key] = string(v)
	default:
		m.strings[key] = fmt.Sprint(v)
	}
	m.ttls[key] = expiration
	return nil
}

func (m *memRedis) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.strings, k)
		delete(m.hashes, k)
	}
	return nil
}

func (m *memRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memRedis) HSet(ctx context.Context, key string, values ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return nil
}

func (m *memRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = expiration
	return nil
}

func testSnapshot() engine.LotSnapshot {
	return engine.LotSnapshot{
		LotID: "main",
		Spots: []parking.Spot{
			{ID: "A1", Category: parking.CategoryStandard, Status: parking.StatusOccupied, X: 10, Y: 22, Lane: "A"},
			{ID: "A2", Category: parking.CategoryEV, Status: parking.StatusAvailable, X: 18.5, Y: 22, Lane: "A"},
		},
		Counts:    lot.Counts{Total: 2, Available: 1, Occupied: 1},
		UpdatedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestSetAndGetLot(t *testing.T) {
	// Setup
	client := newMemRedis()
	c := NewLotCache(client, "pp:", time.Minute, logger.Discard())
	ctx := context.Background()

	// Act
	if err := c.SetLot(ctx, testSnapshot()); err != nil {
		t.Fatalf("SetLot: %v", err)
	}
	snap, err := c.GetLot(ctx, "main")

	// Assert
	if err != nil {
		t.Fatalf("GetLot: %v", err)
	}
	if len(snap.Spots) != 2 || snap.Spots[1].Category != parking.CategoryEV || snap.Counts.Occupied != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	statuses, err := c.GetStatuses(ctx, "main")
	if err != nil || statuses["A1"] != parking.StatusOccupied {
		t.Errorf("unexpected statuses %v (%v)", statuses, err)
	}
	if client.ttls["pp:lot:main"] != time.Minute || client.ttls["pp:lot:main:spots"] != time.Minute {
		t.Errorf("expiration not applied: %v", client.ttls)
	}
}

func TestGetLotMiss(t *testing.T) {
	c := NewLotCache(newMemRedis(), "", 0, logger.Discard())

	if _, err := c.GetLot(context.Background(), "main"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
	if _, err := c.GetStatuses(context.Background(), "main"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestInvalidateLot(t *testing.T) {
	client := newMemRedis()
	c := NewLotCache(client, "", 0, logger.Discard())
	ctx := context.Background()
	_ = c.SetLot(ctx, testSnapshot())

	if err := c.InvalidateLot(ctx, "main"); err != nil {
		t.Fatalf("InvalidateLot: %v", err)
	}
	if _, err := c.GetLot(ctx, "main"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after invalidation, got %v", err)
	}
}

func TestOnLotUpdateSwallowsErrors(t *testing.T) {
	client := newMemRedis()
	client.failSet = true
	c := NewLotCache(client, "", 0, logger.Discard())

	// Must not panic or block.
	c.OnLotUpdate(testSnapshot())

	client.failSet = false
	c.OnLotUpdate(testSnapshot())
	if _, err := c.GetLot(context.Background(), "main"); err != nil {
		t.Errorf("expected mirrored lot, got %v", err)
	}
}
