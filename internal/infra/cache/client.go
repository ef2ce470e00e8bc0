package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Address  string // host:port
	Password string
	DB       int
	PoolSize int // 0 keeps the go-redis default
}

// GoRedisClient adapts *redis.Client to RedisClient.
type GoRedisClient struct {
	client *redis.Client
}

// NewRedis connects and pings the server.
func NewRedis(cfg Config) (*GoRedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}
	return &GoRedisClient{client: client}, nil
}

func (g *GoRedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (g *GoRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return g.client.Set(ctx, key, value, expiration).Err()
}

func (g *GoRedisClient) Del(ctx context.Context, keys ...string) error {
	return g.client.Del(ctx, keys...).Err()
}

func (g *GoRedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return g.client.HGetAll(ctx, key).Result()
}

func (g *GoRedisClient) HSet(ctx context.Context, key string, values ...interface{}) error {
	return g.client.HSet(ctx, key, values...).Err()
}

func (g *GoRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return g.client.Expire(ctx, key, expiration).Err()
}

// Close releases the connection pool.
func (g *GoRedisClient) Close() error {
	return g.client.Close()
}
