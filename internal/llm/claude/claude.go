// Package claude invokes Anthropic models through the official SDK.
package claude

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/okapihealth/okapi/internal/llm"
)

// Client implements llm.Invoker for the Anthropic Messages API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude client with the given API key and model name.
func New(apiKey, model string) *Client {
	return newClient(model, option.WithAPIKey(apiKey))
}

func newClient(model string, opts ...option.RequestOption) *Client {
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Name implements llm.Invoker.
func (c *Client) Name() string { return "claude" }

// Invoke implements llm.Invoker.
func (c *Client) Invoke(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(opts.MaxOutputTokens),
		Temperature: anthropic.Float(opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}
