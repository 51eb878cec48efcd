// Package vertex invokes Gemini models on Google Vertex AI.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okapihealth/okapi/internal/llm"
)

// Client implements llm.Invoker for the Vertex AI generateContent API.
type Client struct {
	accessToken string
	project     string
	location    string
	model       string
	baseURL     string
	httpClient  *http.Client
}

// New creates a Vertex AI client. The access token is an OAuth2 bearer token
// with the aiplatform scope.
func New(accessToken, project, location, model string) *Client {
	return &Client{
		accessToken: accessToken,
		project:     project,
		location:    location,
		model:       model,
		baseURL:     fmt.Sprintf("https://%s-aiplatform.googleapis.com", location),
		httpClient:  &http.Client{},
	}
}

// Name implements llm.Invoker.
func (c *Client) Name() string { return "vertex" }

type request struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type response struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Invoke implements llm.Invoker.
func (c *Client) Invoke(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
	body, err := json.Marshal(request{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		c.baseURL, c.project, c.location, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

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
		return "", fmt.Errorf("vertex api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in vertex response")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
