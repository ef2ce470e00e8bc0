package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-3-5-haiku-latest"
	anthropicVersion        = "2023-06-01"
)

// AnthropicProvider implements LLMProvider for the Anthropic messages API.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	usage      usage
	budgetGate *BudgetGate
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicProvider creates a new Claude adapter.
func NewAnthropicProvider(cfg ProviderConfig, budgetGate *BudgetGate) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		budgetGate: budgetGate,
	}
	if p.baseURL == "" {
		p.baseURL = anthropicDefaultBaseURL
	}
	if p.model == "" {
		p.model = anthropicDefaultModel
	}
	if p.httpClient.Timeout == 0 {
		p.httpClient.Timeout = 30 * time.Second
	}
	return p
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "Anthropic"
}

// IsAvailable checks if the API key is configured.
func (p *AnthropicProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// Complete sends a completion request to Claude. System messages are lifted
// into the top-level system field.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 256
	}

	estimatedCost := p.calculateCost(1000, maxTokens)
	if p.budgetGate != nil && !p.budgetGate.CanSpend(estimatedCost) {
		return nil, fmt.Errorf("budget limit exceeded: %s", p.budgetGate.GetStatus())
	}

	var system []string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	body, err := postJSON(ctx, p.httpClient, p.baseURL+"/messages",
		map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicVersion,
		},
		anthropicRequest{
			Model:       model,
			MaxTokens:   maxTokens,
			System:      strings.Join(system, "\n\n"),
			Messages:    messages,
			Temperature: req.Temperature,
		})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	latency := time.Since(start)

	var aResp anthropicResponse
	if err := json.Unmarshal(body, &aResp); err != nil {
		return nil, fmt.Errorf("anthropic: failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, c := range aResp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: empty response")
	}

	total := aResp.Usage.InputTokens + aResp.Usage.OutputTokens
	cost := p.calculateCost(aResp.Usage.InputTokens, aResp.Usage.OutputTokens)
	if p.budgetGate != nil {
		p.budgetGate.RecordSpend(cost)
	}
	p.usage.record(total, cost)

	return &CompletionResponse{
		Content:      text.String(),
		Model:        aResp.Model,
		PromptTokens: aResp.Usage.InputTokens,
		OutputTokens: aResp.Usage.OutputTokens,
		TotalTokens:  total,
		CostUSD:      cost,
		Latency:      latency,
		FinishReason: aResp.StopReason,
	}, nil
}

// calculateCost uses the small-model input/output prices per token.
func (p *AnthropicProvider) calculateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*0.0000008 + float64(outputTokens)*0.000004
}

// GetUsageStats returns current usage statistics.
func (p *AnthropicProvider) GetUsageStats() UsageStats {
	return p.usage.snapshot(p.budgetGate)
}

// ResetUsage resets all usage counters.
func (p *AnthropicProvider) ResetUsage() {
	p.usage.reset()
}

var _ LLMProvider = (*AnthropicProvider)(nil)
