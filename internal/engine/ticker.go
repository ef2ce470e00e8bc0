package engine

import (
	"context"
	"sync"
	"time"

	"github.com/parkpilot/server/internal/platform/logger"
)

// Ticker runs a callback at a fixed interval until stopped.
// It knows nothing about vehicles or spots, only time progression.
type Ticker struct {
	name     string
	interval time.Duration
	onTick   func(now time.Time)
	logger   *logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTicker creates a ticker that calls onTick every interval.
func NewTicker(name string, interval time.Duration, onTick func(now time.Time), log *logger.Logger) *Ticker {
	return &Ticker{
		name:     name,
		interval: interval,
		onTick:   onTick,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled or Stop is called. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("ticker started", "ticker", t.name, "interval", t.interval)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("ticker stopped by context", "ticker", t.name)
			return
		case <-t.stopChan:
			t.logger.Info("ticker stopped manually", "ticker", t.name)
			return
		case now := <-ticker.C:
			t.onTick(now)
		}
	}
}

// Stop gracefully stops the ticker. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Interval returns the tick period.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}
