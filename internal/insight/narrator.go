package insight

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/infra/ai"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/metrics"
)

// FallbackText is served whenever no model produced a summary.
const FallbackText = "Automated insight is unavailable right now. The live lot figures are shown below."

// Source values of an Insight.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Insight is one operator summary.
type Insight struct {
	Text        string       `json:"text"`
	Source      string       `json:"source"`
	Provider    string       `json:"provider,omitempty"`
	Cached      bool         `json:"cached"`
	GeneratedAt time.Time    `json:"generated_at"`
	Stats       engine.Stats `json:"stats"`
}

// Narrator produces insights, caching model answers for a short while so that
// dashboard refreshes do not each cost a completion.
type Narrator struct {
	provider   ai.LLMProvider
	perceiver  *Perceiver
	logger     *logger.Logger
	metrics    *metrics.Collector
	cacheTTL   time.Duration
	maxRetries int
	backoff    time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cached *Insight
}

// NewNarrator creates a narrator. provider may be nil, in which case every
// insight is the fallback.
func NewNarrator(provider ai.LLMProvider, p *Perceiver, cacheTTL time.Duration, log *logger.Logger) *Narrator {
	return &Narrator{
		provider:   provider,
		perceiver:  p,
		logger:     log.With("component", "insight"),
		metrics:    metrics.Get(),
		cacheTTL:   cacheTTL,
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
		now:        time.Now,
	}
}

// Narrate returns a summary of the lot. It never fails: any provider error
// yields the fallback text alongside the live figures.
func (n *Narrator) Narrate(ctx context.Context) Insight {
	if in, ok := n.fromCache(); ok {
		return in
	}

	prompt, stats := n.perceiver.Perceive()
	in := Insight{
		Text:        FallbackText,
		Source:      SourceFallback,
		GeneratedAt: n.now(),
		Stats:       stats,
	}

	if n.provider == nil || !n.provider.IsAvailable() {
		return in
	}

	text, err := n.complete(ctx, prompt)
	if err != nil {
		n.metrics.RecordLLMFailure()
		n.logger.Warn("insight generation failed, serving fallback",
			"provider", n.provider.Name(), "error", err)
		return in
	}

	in.Text = text
	in.Source = SourceModel
	in.Provider = n.provider.Name()
	n.store(in)
	return in
}

func (n *Narrator) complete(ctx context.Context, prompt ai.InsightContext) (string, error) {
	req := ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: ai.InsightSystemPrompt},
			{Role: "user", Content: ai.BuildInsightPrompt(prompt)},
		},
		MaxTokens:   200,
		Temperature: 0.3,
	}

	var (
		resp *ai.CompletionResponse
		err  error
	)
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		resp, err = n.provider.Complete(ctx, req)
		if err == nil {
			break
		}
		var se *ai.StatusError
		if !errors.As(err, &se) || !se.Retryable() || attempt == n.maxRetries {
			return "", err
		}
		n.logger.Warn("insight attempt failed, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt+1) * n.backoff):
		}
	}

	n.metrics.RecordLLMCall(resp.TotalTokens, resp.CostUSD, resp.Latency)
	text := ai.CleanInsight(resp.Content)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

func (n *Narrator) fromCache() (Insight, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cached == nil || n.cacheTTL <= 0 || n.now().Sub(n.cached.GeneratedAt) >= n.cacheTTL {
		return Insight{}, false
	}
	in := *n.cached
	in.Cached = true
	// Figures are cheap, keep them live.
	_, in.Stats = n.perceiver.Perceive()
	return in, true
}

func (n *Narrator) store(in Insight) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cached = &in
}

// Invalidate drops the cached summary.
func (n *Narrator) Invalidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cached = nil
}

// Run refreshes the insight every interval and hands it to publish until ctx
// is cancelled.
func (n *Narrator) Run(ctx context.Context, interval time.Duration, publish func(Insight)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n.logger.Info("insight loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("insight loop stopped")
			return
		case <-ticker.C:
			n.Invalidate()
			publish(n.Narrate(ctx))
		}
	}
}
