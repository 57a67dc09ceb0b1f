package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

// messageService is the subset of the Anthropic messages API used here.
type messageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient wraps the Anthropic messages service.
type AnthropicClient struct {
	messages    messageService
	model       anthropic.Model
	temperature float64
	maxTokens   int64
}

// NewAnthropicClient creates an AnthropicClient. An API key is required.
func NewAnthropicClient(opts ...Option) (*AnthropicClient, error) {
	cfg := resolveOpts(opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrAPIKeyRequired)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{
		messages:    &client.Messages,
		model:       anthropic.Model(model),
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
	}, nil
}

// GenerateResponse sends the user message with the system instruction as the system prompt.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	}
	if systemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemInstruction}}
	}

	slog.Debug("AnthropicClient.GenerateResponse: calling model", "model", c.model, "userMessageLength", len(userMessage))
	message, err := c.messages.New(ctx, params)
	if err != nil {
		slog.Error("AnthropicClient.GenerateResponse: request failed", "error", err, "model", c.model)
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", ErrEmptyResponse
	}
	slog.Debug("AnthropicClient.GenerateResponse: reply received", "model", c.model, "length", len(content))
	return content, nil
}
