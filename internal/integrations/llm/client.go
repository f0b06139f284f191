package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "llama-3.1-8b-instant"
const defaultOpenAIBaseURL = "https://api.groq.com/openai/v1"

// Request is one prompt sent to an oracle. Role only labels log lines.
type Request struct {
	Role        string
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   int
}

type Response struct {
	Text  string
	Usage Usage
}

// Client sends a prompt and returns the oracle's raw text.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Settings select and authenticate one oracle slot.
type Settings struct {
	Provider          string
	BaseURL           string
	Model             string
	APIKey            string
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// NewClient builds the client for s.Provider, throttled to
// s.RequestsPerMinute when that is positive.
func NewClient(s Settings) (Client, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is empty for provider %s", s.Provider)
	}
	httpClient := s.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var client Client
	switch s.Provider {
	case ProviderOpenAI, "":
		model := s.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		client = NewOpenAIClient(s.APIKey, model, baseURL, httpClient)
	case ProviderAnthropic:
		model := s.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		client = NewAnthropicClient(s.APIKey, model, s.BaseURL, httpClient)
	default:
		return nil, fmt.Errorf("llm provider must be '%s' or '%s', got '%s'", ProviderOpenAI, ProviderAnthropic, s.Provider)
	}
	return NewRateLimited(client, s.RequestsPerMinute), nil
}

func floatPtr(v float64) *float64 {
	return &v
}
