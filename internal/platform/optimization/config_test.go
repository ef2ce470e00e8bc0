package optimization

import (
	"context"
	"testing"
	"time"

	"github.com/parkpilot/server/internal/platform/metrics"
)

func TestForName(t *testing.T) {
	if ForName("stress").MaxClientsPerLot != StressTestConfig().MaxClientsPerLot {
		t.Error("stress profile not selected")
	}
	if ForName("dev").ClientSendBuffer != 8 {
		t.Error("low resource profile not selected")
	}
	if ForName("").ClassifyQueue != DefaultConfig().ClassifyQueue {
		t.Error("default profile not selected")
	}
}

func TestAnalyzeSnapshot(t *testing.T) {
	c := metrics.New()
	c.RecordTick(35 * time.Millisecond)
	c.RecordEventWrite(80*time.Millisecond, nil)
	c.RecordClassification(metrics.ClassifyStale, time.Millisecond)
	c.RecordWSError()

	rec := Analyze(c.Snapshot())
	if !rec.IncreaseEventBuffer || !rec.IncreaseClassifyQueue || !rec.IncreaseBroadcastBuffer {
		t.Errorf("unexpected recommendations %+v", rec)
	}

	cfg := ApplyRecommendations(LowResourceConfig(), rec)
	if cfg.ClassifyQueue != 2 || cfg.ClientSendBuffer != 16 || cfg.EventChannelBuffer != 128 {
		t.Errorf("recommendations not applied: %+v", cfg)
	}
}

func TestSlowPhysicsOnlyAddsNote(t *testing.T) {
	c := metrics.New()
	c.RecordTick(35 * time.Millisecond)

	rec := Analyze(c.Snapshot())
	if rec.IncreaseEventBuffer || rec.IncreaseDBConnections || rec.IncreaseBroadcastBuffer || rec.IncreaseClassifyQueue {
		t.Errorf("slow physics must not resize anything: %+v", rec)
	}
	if len(rec.Notes) != 1 {
		t.Errorf("expected one note, got %v", rec.Notes)
	}
}

func TestWatchReportsSuggestedProfile(t *testing.T) {
	// Setup
	c := metrics.New()
	c.RecordClassification(metrics.ClassifyStale, time.Millisecond)
	current := *LowResourceConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reported := make(chan *Config, 1)

	// Act
	go Watch(ctx, 5*time.Millisecond, current, c.Snapshot, func(rec *Recommendations, suggested *Config) {
		select {
		case reported <- suggested:
		default:
		}
		cancel()
	})

	// Assert
	select {
	case cfg := <-reported:
		if cfg.ClassifyQueue != 2 {
			t.Errorf("suggested ClassifyQueue = %d, want 2", cfg.ClassifyQueue)
		}
		if current.ClassifyQueue != 1 {
			t.Errorf("current profile was modified: %d", current.ClassifyQueue)
		}
	case <-time.After(time.Second):
		t.Fatal("no recommendation reported")
	}
}

func TestWatchStaysQuietWhenHealthy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	called := false
	Watch(ctx, 5*time.Millisecond, *DefaultConfig(), metrics.New().Snapshot, func(*Recommendations, *Config) {
		called = true
	})
	if called {
		t.Error("healthy metrics must not be reported")
	}
}
