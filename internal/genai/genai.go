// Package genai provides the language-model call used once a prompt is ready.
//
// Providers: OpenAI chat completions, Anthropic messages and an offline client
// that produces canned replies for development without credentials.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Provider names accepted by NewClient.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOffline   = "offline"
)

// Generation defaults.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Error variables for better error handling and testability
var (
	ErrNoChoicesReturned = errors.New("no choices returned from model")
	ErrEmptyResponse     = errors.New("model returned an empty response")
	ErrAPIKeyRequired    = errors.New("API key is required")
	ErrUnknownProvider   = errors.New("unknown LLM provider")
)

// Client sends a single system+user exchange to a language model.
type Client interface {
	GenerateResponse(ctx context.Context, systemInstruction, userMessage string) (string, error)
}

// Opts holds configuration options for GenAI clients.
type Opts struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// Option defines a configuration option for GenAI clients.
type Option func(*Opts)

// WithProvider selects the backend: openai, anthropic or offline.
func WithProvider(provider string) Option {
	return func(o *Opts) {
		o.Provider = provider
	}
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the model name; empty keeps the provider default.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithBaseURL points the client at an API-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) {
		o.Temperature = temp
	}
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) Option {
	return func(o *Opts) {
		o.MaxTokens = n
	}
}

func resolveOpts(opts []Option) Opts {
	cfg := Opts{
		Provider:    ProviderOpenAI,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return cfg
}

// NewClient creates the client for the configured provider.
func NewClient(opts ...Option) (Client, error) {
	cfg := resolveOpts(opts)
	slog.Debug("genai.NewClient: creating client", "provider", cfg.Provider, "model", cfg.Model, "apiKeySet", cfg.APIKey != "")

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(opts...)
	case ProviderAnthropic:
		return NewAnthropicClient(opts...)
	case ProviderOffline:
		return NewOfflineClient(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
