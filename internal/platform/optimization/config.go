// Package optimization provides concurrency tuning profiles: channel buffers,
// connection pools and client limits.
package optimization

import (
	"context"
	"runtime"
	"strings"
	"time"
)

// Config holds tuned parameters for one deployment profile.
type Config struct {
	// Channel buffer sizes
	EventChannelBuffer     int
	BroadcastChannelBuffer int
	ClientSendBuffer       int
	ClassifyQueue          int // pending uploads before new ones are rejected

	// Connection pools
	DBMaxOpenConns int
	DBMaxIdleConns int
	RedisPoolSize  int

	// Rate limiting
	MaxMessagesPerSecond int
	MaxClientsPerLot     int
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		EventChannelBuffer:     1024,
		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64,
		ClassifyQueue:          4,

		// SQLite allows one writer; extra connections only help readers
		DBMaxOpenConns: numCPU * 2,
		DBMaxIdleConns: numCPU,

		RedisPoolSize: numCPU * 2,

		MaxMessagesPerSecond: 100,
		MaxClientsPerLot:     200,
	}
}

// StressTestConfig returns aggressive settings for load testing.
func StressTestConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		EventChannelBuffer:     4096,
		BroadcastChannelBuffer: 512,
		ClientSendBuffer:       128,
		ClassifyQueue:          16,

		DBMaxOpenConns: numCPU * 4,
		DBMaxIdleConns: numCPU * 2,
		RedisPoolSize:  numCPU * 4,

		MaxMessagesPerSecond: 500,
		MaxClientsPerLot:     1000,
	}
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	return &Config{
		EventChannelBuffer:     64,
		BroadcastChannelBuffer: 16,
		ClientSendBuffer:       8,
		ClassifyQueue:          1,

		DBMaxOpenConns: 2,
		DBMaxIdleConns: 1,
		RedisPoolSize:  5,

		MaxMessagesPerSecond: 10,
		MaxClientsPerLot:     20,
	}
}

// ForName resolves a profile name, falling back to the default profile.
func ForName(name string) *Config {
	switch strings.ToLower(name) {
	case "stress", "stress-test":
		return StressTestConfig()
	case "low", "low-resource", "dev":
		return LowResourceConfig()
	default:
		return DefaultConfig()
	}
}

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	IncreaseEventBuffer     bool
	IncreaseBroadcastBuffer bool
	IncreaseDBConnections   bool
	IncreaseClassifyQueue   bool
	Notes                   []string
}

// Analyze examines a metrics snapshot and returns recommendations.
func Analyze(metrics map[string]interface{}) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	// Reported without a resize.
	if physics, ok := metrics["physics"].(map[string]interface{}); ok {
		if maxLat, ok := physics["max_latency_ms"].(float64); ok && maxLat > 20 {
			rec.Notes = append(rec.Notes, "Physics tick latency exceeds its 20ms period - lot lock is contended")
		}
	}

	if events, ok := metrics["events"].(map[string]interface{}); ok {
		if maxLat, ok := events["max_write_lat_ms"].(float64); ok && maxLat > 50 {
			rec.IncreaseEventBuffer = true
			rec.Notes = append(rec.Notes, "Activity write latency exceeds 50ms - persister queues may fill and stall appends")
		}
		if errors, ok := events["errors"].(int64); ok && errors > 0 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Activity write errors detected - check DB connection pool")
		}
	}

	if cls, ok := metrics["classification"].(map[string]interface{}); ok {
		if stale, ok := cls["stale"].(int64); ok && stale > 0 {
			rec.IncreaseClassifyQueue = true
			rec.Notes = append(rec.Notes, "Stale classifications discarded - uploads arrive faster than they are classified")
		}
	}

	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if errors, ok := ws["errors"].(int64); ok && errors > 0 {
			rec.IncreaseBroadcastBuffer = true
			rec.Notes = append(rec.Notes, "WebSocket errors detected - increase client send buffer")
		}
	}

	return rec
}

// ApplyRecommendations modifies config based on recommendations.
func ApplyRecommendations(config *Config, rec *Recommendations) *Config {
	if rec.IncreaseEventBuffer {
		config.EventChannelBuffer *= 2
	}
	if rec.IncreaseBroadcastBuffer {
		config.BroadcastChannelBuffer *= 2
		config.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		config.DBMaxOpenConns = int(float64(config.DBMaxOpenConns) * 1.5)
		config.DBMaxIdleConns = int(float64(config.DBMaxIdleConns) * 1.5)
	}
	if rec.IncreaseClassifyQueue {
		config.ClassifyQueue *= 2
	}
	return config
}

// Watch analyses snapshot every interval and hands non-empty recommendations,
// together with the profile they would produce from current, to report. It
// returns when ctx is done.
func Watch(ctx context.Context, interval time.Duration, current Config, snapshot func() map[string]interface{}, report func(*Recommendations, *Config)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec := Analyze(snapshot())
			if len(rec.Notes) == 0 {
				continue
			}
			suggested := current
			report(rec, ApplyRecommendations(&suggested, rec))
		}
	}
}
