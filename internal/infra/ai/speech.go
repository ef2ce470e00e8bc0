package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SpeechRequest is one utterance to synthesise.
type SpeechRequest struct {
	Text     string
	Distance float64 // normalised distance to the target, drives urgency
}

// Audio is synthesised speech.
type Audio struct {
	Data     []byte
	MimeType string
}

// SpeechProvider turns guidance text into playable audio.
type SpeechProvider interface {
	Synthesize(ctx context.Context, req SpeechRequest) (*Audio, error)
	Name() string
	IsAvailable() bool
}

const (
	openAISpeechModel = "tts-1"
	openAISpeechVoice = "alloy"
	// urgentDistance speeds speech up when the spot is close.
	urgentDistance = 10.0
)

// OpenAISpeechProvider implements SpeechProvider with the OpenAI speech API.
type OpenAISpeechProvider struct {
	apiKey     string
	baseURL    string
	voice      string
	httpClient *http.Client
}

type openAISpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// NewOpenAISpeechProvider creates the speech adapter. voice may be empty.
func NewOpenAISpeechProvider(cfg ProviderConfig, voice string) *OpenAISpeechProvider {
	p := &OpenAISpeechProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		voice:      voice,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if p.baseURL == "" {
		p.baseURL = openAIDefaultBaseURL
	}
	if p.voice == "" {
		p.voice = openAISpeechVoice
	}
	if p.httpClient.Timeout == 0 {
		p.httpClient.Timeout = 10 * time.Second
	}
	return p
}

// Name returns the provider name.
func (p *OpenAISpeechProvider) Name() string {
	return "OpenAI TTS"
}

// IsAvailable checks if the API key is configured.
func (p *OpenAISpeechProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// Synthesize returns mp3 audio for req.Text.
func (p *OpenAISpeechProvider) Synthesize(ctx context.Context, req SpeechRequest) (*Audio, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("openai tts: %w", ErrNotConfigured)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("openai tts: empty text")
	}

	speed := 1.0
	if req.Distance > 0 && req.Distance < urgentDistance {
		speed = 1.15
	}

	data, err := postJSON(ctx, p.httpClient, p.baseURL+"/audio/speech",
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		openAISpeechRequest{
			Model:          openAISpeechModel,
			Input:          req.Text,
			Voice:          p.voice,
			ResponseFormat: "mp3",
			Speed:          speed,
		})
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai tts: empty audio")
	}
	return &Audio{Data: data, MimeType: "audio/mpeg"}, nil
}

var _ SpeechProvider = (*OpenAISpeechProvider)(nil)
