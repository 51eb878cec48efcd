// Package bedrock invokes Anthropic models hosted on AWS Bedrock Runtime.
package bedrock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okapihealth/okapi/internal/llm"
)

const anthropicVersion = "bedrock-2023-05-31"

// Client implements llm.Invoker for the Bedrock Runtime InvokeModel API.
type Client struct {
	apiKey     string
	modelID    string
	baseURL    string
	httpClient *http.Client
}

// New creates a Bedrock client for the given region and model ID,
// authenticated with a Bedrock API key.
func New(apiKey, region, modelID string) *Client {
	return &Client{
		apiKey:  apiKey,
		modelID: modelID,
		baseURL: fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region),
		// No client-level timeout: the per-call deadline comes in on the
		// request context.
		httpClient: &http.Client{},
	}
}

// Name implements llm.Invoker.
func (c *Client) Name() string { return "bedrock" }

type request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature,omitempty"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Invoke implements llm.Invoker.
func (c *Client) Invoke(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
	body, err := json.Marshal(request{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        opts.MaxOutputTokens,
		Temperature:      opts.Temperature,
		Messages:         []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/model/%s/invoke", c.baseURL, c.modelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bedrock api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in bedrock response")
}
