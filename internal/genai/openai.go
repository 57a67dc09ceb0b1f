package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient wraps the OpenAI chat completions service.
type OpenAIClient struct {
	chat        chatService
	model       openai.ChatModel
	temperature float64
	maxTokens   int
}

// NewOpenAIClient creates an OpenAIClient. An API key is required.
func NewOpenAIClient(opts ...Option) (*OpenAIClient, error) {
	cfg := resolveOpts(opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrAPIKeyRequired)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(reqOpts...)

	model := openai.ChatModelGPT4oMini
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	return &OpenAIClient{
		chat:        &client.Chat.Completions,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// GenerateResponse sends the system instruction and user message as one chat completion.
func (c *OpenAIClient) GenerateResponse(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(userMessage),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}

	slog.Debug("OpenAIClient.GenerateResponse: calling model", "model", c.model, "userMessageLength", len(userMessage))
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("OpenAIClient.GenerateResponse: request failed", "error", err, "model", c.model)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	slog.Debug("OpenAIClient.GenerateResponse: reply received", "model", c.model, "length", len(content))
	return content, nil
}
