// Package genai provides the LLM-backed support responder using the OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/quickrupee/loanflow/internal/models"
)

// ErrNoChoicesReturned indicates the API returned an empty choices list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// completionService defines the minimal interface for chat completions.
type completionService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client answers support questions through the OpenAI chat completion API.
type Client struct {
	chat  completionService
	model openai.ChatModel
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the OPENAI_API_KEY variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model. Defaults to gpt-4o-mini.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// NewClient initializes a GenAI client. The API key is taken from options or
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI client missing API key")
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client initialized", "model", cfg.Model)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

func languageName(lang models.Language) string {
	if lang == models.LanguageHindi {
		return "Hindi"
	}
	return "English"
}

// Answer generates a concise support answer to a customer question. The
// loanContext, when non-empty, is the customer's loan record serialized as
// JSON and is provided to the model as grounding.
func (c *Client) Answer(ctx context.Context, question string, lang models.Language, loanContext string) (string, error) {
	system := fmt.Sprintf("You are QuickRupee Finance's bilingual support assistant. Answer concisely in %s. "+
		"If unsure, acknowledge and suggest connecting to an agent.", languageName(lang))
	user := question
	if loanContext != "" {
		user = fmt.Sprintf("Customer loan record: %s\n\nQuestion: %s", loanContext, question)
	}

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		slog.Error("GenAI completion failed", "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI completion returned no choices")
		return "", ErrNoChoicesReturned
	}
	answer := resp.Choices[0].Message.Content
	slog.Debug("GenAI answer generated", "length", len(answer))
	return answer, nil
}
