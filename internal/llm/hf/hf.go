// Package hf invokes models on the Hugging Face Inference API.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okapihealth/okapi/internal/llm"
)

// Client implements llm.Invoker for the Hugging Face Inference API.
type Client struct {
	token      string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a Hugging Face client for the given model repo, e.g.
// "mistralai/Mistral-7B-Instruct-v0.3".
func New(token, model string) *Client {
	return &Client{
		token:      token,
		model:      model,
		baseURL:    "https://api-inference.huggingface.co",
		httpClient: &http.Client{},
	}
}

// Name implements llm.Invoker.
func (c *Client) Name() string { return "hf" }

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	Temperature    float64 `json:"temperature,omitempty"`
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Invoke implements llm.Invoker.
func (c *Client) Invoke(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
	body, err := json.Marshal(request{
		Inputs: prompt,
		Parameters: parameters{
			Temperature:    opts.Temperature,
			MaxNewTokens:   opts.MaxOutputTokens,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/models/" + c.model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

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
		return "", fmt.Errorf("huggingface api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out []generation
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out) == 0 || out[0].GeneratedText == "" {
		return "", fmt.Errorf("no generated text in huggingface response")
	}
	return out[0].GeneratedText, nil
}
