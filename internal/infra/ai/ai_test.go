package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAICompleteRecordsUsage(t *testing.T) {
	// Setup
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"model":"gpt-4o-mini","choices":[{"message":{"content":"Lot is quiet."},"finish_reason":"stop"}],"usage":{"prompt_tokens":90,"completion_tokens":10,"total_tokens":100}}`)
	}))
	defer srv.Close()

	gate := NewBudgetGate(1, 10)
	p := NewOpenAIProvider(ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL}, gate)

	// Act
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:  []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
		MaxTokens: 50,
	})

	// Assert
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Lot is quiet." || resp.TotalTokens != 100 {
		t.Errorf("unexpected response %+v", resp)
	}
	if got.Model != "gpt-4o-mini" || len(got.Messages) != 2 {
		t.Errorf("unexpected request %+v", got)
	}
	stats := p.GetUsageStats()
	if stats.TotalRequests != 1 || stats.TotalTokens != 100 {
		t.Errorf("unexpected usage %+v", stats)
	}
	if stats.BudgetRemaining >= 10 {
		t.Errorf("expected spend recorded against the budget, remaining %v", stats.BudgetRemaining)
	}
}

func TestOpenAINotConfigured(t *testing.T) {
	p := NewOpenAIProvider(ProviderConfig{}, nil)
	if _, err := p.Complete(context.Background(), CompletionRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := p.Complete(context.Background(), CompletionRequest{})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !se.Retryable() {
		t.Error("429 should be retryable")
	}
}

func TestAnthropicLiftsSystemMessages(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic headers")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"model":"claude","content":[{"type":"text","text":"All good."}],"stop_reason":"end_turn","usage":{"input_tokens":40,"output_tokens":5}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{APIKey: "ak", BaseURL: srv.URL}, nil)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "status?"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.System != "be brief" || len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("system message not lifted: %+v", got)
	}
	if resp.Content != "All good." || resp.TotalTokens != 45 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestBudgetGateBlocksOverspend(t *testing.T) {
	gate := NewBudgetGate(1, 5)
	if !gate.CanSpend(0.9) {
		t.Fatal("expected first spend allowed")
	}
	gate.RecordSpend(0.9)
	if gate.CanSpend(0.2) {
		t.Error("expected daily limit to block")
	}
	if !strings.Contains(gate.GetStatus(), "Day: $0.90/1.00") {
		t.Errorf("unexpected status %q", gate.GetStatus())
	}
}

func TestBudgetGateDailyReset(t *testing.T) {
	gate := NewBudgetGate(1, 5)
	now := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }
	gate.LastDayReset, gate.LastMonthReset = now, now

	gate.RecordSpend(1)
	if gate.CanSpend(0.1) {
		t.Fatal("expected blocked before midnight")
	}
	now = now.Add(2 * time.Hour)
	if !gate.CanSpend(0.1) {
		t.Error("expected daily budget to reset the next day")
	}
	if got := gate.MonthlyRemaining(); got != 4 {
		t.Errorf("expected monthly remaining 4, got %v", got)
	}
}

func TestSpeechSynthesize(t *testing.T) {
	var got openAISpeechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte{0xff, 0xfb, 0x90})
	}))
	defer srv.Close()

	p := NewOpenAISpeechProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL}, "")
	audio, err := p.Synthesize(context.Background(), SpeechRequest{Text: "Turn left", Distance: 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio.Data) != 3 || audio.MimeType != "audio/mpeg" {
		t.Errorf("unexpected audio %+v", audio)
	}
	if got.Voice != "alloy" || got.Speed != 1.15 || got.Input != "Turn left" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestBuildInsightPrompt(t *testing.T) {
	recent := make([]string, 30)
	for i := range recent {
		recent[i] = "entry"
	}
	recent[29] = "ARRIVED car-1 B4"

	p := BuildInsightPrompt(InsightContext{
		LotID: "main", OccupancyRate: 0.75, Total: 20, Occupied: 14, Reserved: 1, Available: 5,
		RevenueUSD: 12.5, AvgSearchTime: 42 * time.Second, Arrivals: 3, Recent: recent,
	})
	for _, want := range []string{"Occupancy: 75%", "$12.50", "42s over 3 arrivals", "ARRIVED car-1 B4"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if n := strings.Count(p, "- entry"); n != maxRecentLines-1 {
		t.Errorf("expected %d older entries, got %d", maxRecentLines-1, n)
	}
}

func TestCleanInsight(t *testing.T) {
	if got := CleanInsight("  Lot is\n\n busy.  "); got != "Lot is busy." {
		t.Errorf("unexpected %q", got)
	}
	long := strings.Repeat("a", 700)
	if got := []rune(CleanInsight(long)); len(got) != maxInsightLength {
		t.Errorf("expected truncation to %d runes, got %d", maxInsightLength, len(got))
	}
}
