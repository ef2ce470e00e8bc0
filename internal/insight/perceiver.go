// Package insight writes short operator summaries of the lot.
//
// The Perceiver turns live statistics and the tail of the activity log into
// an ai.InsightContext; the Narrator asks a language model to summarise it
// and falls back to a fixed sentence when no model answers.
package insight

import (
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/infra/ai"
	"github.com/parkpilot/server/internal/platform/logger"
)

// DefaultRecent is how many activity entries are summarised.
const DefaultRecent = 20

// StatsSource supplies the live lot figures.
type StatsSource interface {
	Stats() engine.Stats
}

// Perceiver reads the activity log and the lot figures.
type Perceiver struct {
	stats    StatsSource
	eventLog *events.EventLog
	logger   *logger.Logger
	recent   int
}

// NewPerceiver creates a perceiver summarising the last DefaultRecent events.
func NewPerceiver(stats StatsSource, el *events.EventLog, log *logger.Logger) *Perceiver {
	return &Perceiver{
		stats:    stats,
		eventLog: el,
		logger:   log,
		recent:   DefaultRecent,
	}
}

// Perceive builds the prompt context and returns the stats it was built from.
func (p *Perceiver) Perceive() (ai.InsightContext, engine.Stats) {
	s := p.stats.Stats()
	ctx := ai.InsightContext{
		LotID:         s.LotID,
		OccupancyRate: s.OccupancyRate,
		Total:         s.Counts.Total,
		Available:     s.Counts.Available,
		Occupied:      s.Counts.Occupied,
		Reserved:      s.Counts.Reserved,
		RevenueUSD:    s.RevenueUSD,
		AvgSearchTime: s.AvgSearchTime,
		Arrivals:      s.Arrivals,
	}
	for _, e := range p.eventLog.Recent(p.recent) {
		if e.Type == events.EventTypeGuidanceInstruction {
			// Per-second chatter drowns out everything else.
			continue
		}
		ctx.Recent = append(ctx.Recent, events.Summary(e))
	}
	return ctx, s
}
