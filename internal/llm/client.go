// Package llm generates and reworks alpha expressions through an
// OpenRouter-hosted language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/observability"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultModel      = "google/gemini-2.5-pro"
)

// ErrEmptyResponse means the model returned no usable content.
var ErrEmptyResponse = errors.New("llm: model returned no usable content")

// chatAPI is the slice of the OpenAI client the package uses; tests
// substitute it.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps a chat-completion model for alpha work.
type Client struct {
	api     chatAPI
	model   string
	verbose bool
}

// Options for creating a Client.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Verbose bool
}

// NewClient builds a client against OpenRouter's OpenAI-compatible API.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = openRouterBaseURL
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   model,
		verbose: opts.Verbose,
	}, nil
}

// GenerateRequest shapes a batch of new expressions.
type GenerateRequest struct {
	Operators    []brain.Operator
	DataFields   []brain.DataField
	Count        int
	StrategyType string
	FocusFields  []string
	Complexity   string
}

// GenerateExpressions asks the model for new candidate expressions.
// The returned strings are cleaned but not validated; callers filter
// them through expression validation before simulating.
func (c *Client) GenerateExpressions(ctx context.Context, req GenerateRequest) ([]string, error) {
	count := req.Count
	if count <= 0 {
		count = 5
	}
	content, err := c.complete(ctx, buildGeneratePrompt(req, count), 0.7)
	if err != nil {
		return nil, err
	}
	expressions := ExtractExpressions(content)
	if len(expressions) == 0 {
		return nil, ErrEmptyResponse
	}
	c.log("model produced %d candidate expressions", len(expressions))
	return expressions, nil
}

// PolishExpression asks the model to rework one expression while
// keeping its strategic idea. requirements is free-form guidance and
// may be empty.
func (c *Client) PolishExpression(ctx context.Context, expression, requirements string, operators []brain.Operator) (string, error) {
	content, err := c.complete(ctx, buildPolishPrompt(expression, requirements, operators), 0.4)
	if err != nil {
		return "", err
	}
	polished := CleanExpression(content)
	if polished == "" {
		return "", ErrEmptyResponse
	}
	c.log("polished %q into %q", expression, polished)
	return polished, nil
}

// Analysis is the model's qualitative read of an expression.
type Analysis struct {
	Expression string `json:"expression"`
	Text       string `json:"analysis"`
}

// AnalyzeExpression asks the model to explain what an expression does
// and where it is fragile. The response is kept as free text; it feeds
// reports, not decisions.
func (c *Client) AnalyzeExpression(ctx context.Context, expression string, metrics map[string]float64) (*Analysis, error) {
	content, err := c.complete(ctx, buildAnalyzePrompt(expression, metrics), 0.3)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Analysis{Expression: expression, Text: text}, nil
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		observability.RecordLLMCall("error", time.Since(started).Seconds())
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	observability.RecordLLMCall("ok", time.Since(started).Seconds())
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) log(format string, args ...any) {
	if c.verbose {
		log.Printf("[llm] "+format, args...)
	}
}
