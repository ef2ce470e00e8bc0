// Package metrics provides observability for the parking server: simulation
// tick health, guidance and classification outcomes, websocket traffic and
// collaborator calls.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics.
type Collector struct {
	// Physics tick
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Guidance
	GuidanceChecks int64
	Instructions   int64
	Arrivals       int64
	NoSpotFound    int64

	// Classification
	ClassifyApplied    int64
	ClassifyStale      int64
	ClassifyFailed     int64
	ClassifyLatencySum int64
	ClassifyLatencyMax int64

	// Activity persistence
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// WebSocket
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// LLM insight
	LLMRequests   int64
	LLMFailures   int64
	LLMTokensUsed int64
	LLMCostUSD    float64
	LLMLatencySum int64

	// Speech
	SpeechRequests int64
	SpeechFailures int64
	SpeechDropped  int64

	StartTime time.Time
	mu        sync.RWMutex
}

var collector = New()

// New returns an empty collector. Production code uses Get.
func New() *Collector {
	return &Collector{StartTime: time.Now()}
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordTick records a physics tick.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordGuidanceCheck records one guidance tick.
func (c *Collector) RecordGuidanceCheck() {
	atomic.AddInt64(&c.GuidanceChecks, 1)
}

// RecordInstruction records an emitted instruction.
func (c *Collector) RecordInstruction() {
	atomic.AddInt64(&c.Instructions, 1)
}

// RecordArrival records a vehicle parking in its target.
func (c *Collector) RecordArrival() {
	atomic.AddInt64(&c.Arrivals, 1)
}

// RecordNoSpot records a nearest-spot search without candidates.
func (c *Collector) RecordNoSpot() {
	atomic.AddInt64(&c.NoSpotFound, 1)
}

// Classification outcomes.
const (
	ClassifyApplied = "applied"
	ClassifyStale   = "stale"
	ClassifyFailed  = "failed"
)

// RecordClassification records one classification and how it ended.
func (c *Collector) RecordClassification(outcome string, latency time.Duration) {
	switch outcome {
	case ClassifyApplied:
		atomic.AddInt64(&c.ClassifyApplied, 1)
	case ClassifyStale:
		atomic.AddInt64(&c.ClassifyStale, 1)
	default:
		atomic.AddInt64(&c.ClassifyFailed, 1)
	}
	atomic.AddInt64(&c.ClassifyLatencySum, int64(latency))
	storeMax(&c.ClassifyLatencyMax, int64(latency))
}

// RecordEventWrite records an activity write to a durable store.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))
	storeMax(&c.EventWriteLatMax, int64(latency))

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// RecordLLMCall records an LLM API call.
func (c *Collector) RecordLLMCall(tokens int, cost float64, latency time.Duration) {
	atomic.AddInt64(&c.LLMRequests, 1)
	atomic.AddInt64(&c.LLMTokensUsed, int64(tokens))
	atomic.AddInt64(&c.LLMLatencySum, int64(latency))

	c.mu.Lock()
	c.LLMCostUSD += cost
	c.mu.Unlock()
}

// RecordLLMFailure records a call that ended in the fallback text.
func (c *Collector) RecordLLMFailure() {
	atomic.AddInt64(&c.LLMFailures, 1)
}

// RecordSpeech records a synthesis attempt.
func (c *Collector) RecordSpeech(err error) {
	atomic.AddInt64(&c.SpeechRequests, 1)
	if err != nil {
		atomic.AddInt64(&c.SpeechFailures, 1)
	}
}

// RecordSpeechDropped records an announcement skipped because one was in flight.
func (c *Collector) RecordSpeechDropped() {
	atomic.AddInt64(&c.SpeechDropped, 1)
}

func avgMillis(sum, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n) / 1e6
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)
	llmRequests := atomic.LoadInt64(&c.LLMRequests)
	applied := atomic.LoadInt64(&c.ClassifyApplied)
	stale := atomic.LoadInt64(&c.ClassifyStale)
	failed := atomic.LoadInt64(&c.ClassifyFailed)

	var llmAvg float64
	if llmRequests > 0 {
		llmAvg = float64(atomic.LoadInt64(&c.LLMLatencySum)) / float64(llmRequests) / 1e9 // seconds
	}
	lastTick := ""
	if !c.LastTickTime.IsZero() {
		lastTick = c.LastTickTime.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"physics": map[string]interface{}{
			"ticks":          tickCount,
			"avg_latency_ms": avgMillis(atomic.LoadInt64(&c.TickLatencySum), tickCount),
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTick,
		},

		"guidance": map[string]interface{}{
			"checks":        atomic.LoadInt64(&c.GuidanceChecks),
			"instructions":  atomic.LoadInt64(&c.Instructions),
			"arrivals":      atomic.LoadInt64(&c.Arrivals),
			"no_spot_found": atomic.LoadInt64(&c.NoSpotFound),
		},

		"classification": map[string]interface{}{
			"applied":        applied,
			"stale":          stale,
			"failed":         failed,
			"avg_latency_ms": avgMillis(atomic.LoadInt64(&c.ClassifyLatencySum), applied+stale+failed),
			"max_latency_ms": float64(atomic.LoadInt64(&c.ClassifyLatencyMax)) / 1e6,
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": avgMillis(atomic.LoadInt64(&c.EventWriteLatSum), eventsWritten),
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},

		"llm": map[string]interface{}{
			"requests":        llmRequests,
			"failures":        atomic.LoadInt64(&c.LLMFailures),
			"tokens_used":     atomic.LoadInt64(&c.LLMTokensUsed),
			"cost_usd":        c.LLMCostUSD,
			"avg_latency_sec": llmAvg,
		},

		"speech": map[string]interface{}{
			"requests": atomic.LoadInt64(&c.SpeechRequests),
			"failures": atomic.LoadInt64(&c.SpeechFailures),
			"dropped":  atomic.LoadInt64(&c.SpeechDropped),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return collector.Handler()
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return collector.PrometheusHandler()
}

// Handler serves the JSON snapshot of c.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

func writeMetric(w http.ResponseWriter, name, kind, help string, value any) {
	fmt.Fprintf(w, "# HELP parkpilot_%s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE parkpilot_%s %s\n", name, kind)
	fmt.Fprintf(w, "parkpilot_%s %v\n\n", name, value)
}

// PrometheusHandler serves c in the Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		writeMetric(w, "tick_count", "counter", "Total physics ticks", atomic.LoadInt64(&c.TickCount))
		writeMetric(w, "tick_latency_max_ms", "gauge", "Maximum physics tick latency",
			fmt.Sprintf("%.3f", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6))

		writeMetric(w, "guidance_instructions_total", "counter", "Instructions issued", atomic.LoadInt64(&c.Instructions))
		writeMetric(w, "guidance_arrivals_total", "counter", "Vehicles parked in their target", atomic.LoadInt64(&c.Arrivals))
		writeMetric(w, "no_spot_found_total", "counter", "Nearest spot searches without a candidate", atomic.LoadInt64(&c.NoSpotFound))

		fmt.Fprintf(w, "# HELP parkpilot_classifications_total Classifications by outcome\n")
		fmt.Fprintf(w, "# TYPE parkpilot_classifications_total counter\n")
		fmt.Fprintf(w, "parkpilot_classifications_total{outcome=\"applied\"} %d\n", atomic.LoadInt64(&c.ClassifyApplied))
		fmt.Fprintf(w, "parkpilot_classifications_total{outcome=\"stale\"} %d\n", atomic.LoadInt64(&c.ClassifyStale))
		fmt.Fprintf(w, "parkpilot_classifications_total{outcome=\"failed\"} %d\n\n", atomic.LoadInt64(&c.ClassifyFailed))

		writeMetric(w, "events_written", "counter", "Activity events written", atomic.LoadInt64(&c.EventsWritten))
		writeMetric(w, "event_write_errors", "counter", "Activity write errors", atomic.LoadInt64(&c.EventWriteErrors))

		writeMetric(w, "ws_connections", "gauge", "Active WebSocket connections", atomic.LoadInt64(&c.WSConnectionsActive))
		fmt.Fprintf(w, "# HELP parkpilot_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE parkpilot_ws_messages_total counter\n")
		fmt.Fprintf(w, "parkpilot_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "parkpilot_ws_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		writeMetric(w, "llm_requests", "counter", "Total LLM API requests", atomic.LoadInt64(&c.LLMRequests))
		writeMetric(w, "llm_tokens_used", "counter", "Total tokens consumed", atomic.LoadInt64(&c.LLMTokensUsed))
		c.mu.RLock()
		writeMetric(w, "llm_cost_usd", "counter", "Total LLM cost in USD", fmt.Sprintf("%.4f", c.LLMCostUSD))
		c.mu.RUnlock()

		writeMetric(w, "speech_requests", "counter", "Speech synthesis attempts", atomic.LoadInt64(&c.SpeechRequests))
		writeMetric(w, "speech_failures", "counter", "Speech synthesis failures", atomic.LoadInt64(&c.SpeechFailures))
	}
}
