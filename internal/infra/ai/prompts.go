package ai

import (
	"fmt"
	"strings"
	"time"
)

// InsightSystemPrompt frames the operator summary.
const InsightSystemPrompt = `You are the operations assistant of a small parking facility.
You receive live aggregate statistics and the most recent activity log entries.
Write a short summary for the operator on duty:
- at most three sentences, plain text, no markdown, no lists;
- lead with the most actionable observation (a lot close to full, long search times, repeated failed classifications);
- quote numbers as given, do not invent data that is not in the input.`

// InsightContext is the data a summary is written from.
type InsightContext struct {
	LotID         string
	OccupancyRate float64 // 0-1
	Total         int
	Available     int
	Occupied      int
	Reserved      int
	RevenueUSD    float64
	AvgSearchTime time.Duration
	Arrivals      int
	Recent        []string // one line per activity entry, newest last
}

// maxRecentLines bounds the activity excerpt sent to the model.
const maxRecentLines = 20

// BuildInsightPrompt renders ctx as the user message.
func BuildInsightPrompt(ctx InsightContext) string {
	var sb strings.Builder

	sb.WriteString("## LOT STATUS\n")
	fmt.Fprintf(&sb, "Lot: %s\n", ctx.LotID)
	fmt.Fprintf(&sb, "Occupancy: %.0f%% (%d occupied, %d reserved, %d available of %d)\n",
		ctx.OccupancyRate*100, ctx.Occupied, ctx.Reserved, ctx.Available, ctx.Total)
	fmt.Fprintf(&sb, "Reservation revenue: $%.2f\n", ctx.RevenueUSD)
	if ctx.Arrivals > 0 {
		fmt.Fprintf(&sb, "Average search time: %s over %d arrivals\n", ctx.AvgSearchTime.Round(time.Second), ctx.Arrivals)
	} else {
		sb.WriteString("Average search time: no arrivals yet\n")
	}

	sb.WriteString("\n## RECENT ACTIVITY\n")
	recent := ctx.Recent
	if len(recent) > maxRecentLines {
		recent = recent[len(recent)-maxRecentLines:]
	}
	if len(recent) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, line := range recent {
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	sb.WriteString("\nSummarise the situation for the operator.")
	return sb.String()
}

// maxInsightLength truncates runaway answers.
const maxInsightLength = 600

// CleanInsight trims model output to a single displayable paragraph.
func CleanInsight(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxInsightLength {
		s = string(r[:maxInsightLength-1]) + "…"
	}
	return s
}
