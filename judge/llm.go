package judge

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// LLMClient is the model call abstraction behind the judge and the
// extractor. Implementations return the raw completion text; parsing is
// the caller's problem.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// AnthropicLLM calls the Anthropic Messages API.
type AnthropicLLM struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicLLM wraps an Anthropic client. An empty model defaults to
// claude-sonnet-4-20250514.
func NewAnthropicLLM(client *anthropic.Client, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicLLM{
		client:    client,
		model:     anthropic.Model(model),
		maxTokens: 1024,
	}
}

// Complete sends a single-turn prompt and concatenates the text blocks
// of the response.
func (a *AnthropicLLM) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
