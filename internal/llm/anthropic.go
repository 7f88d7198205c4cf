package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.anthropic.com"
	anthropicVersion   = "2023-06-01"
	defaultMaxTokens   = 2048
	defaultTemperature = 0.7
	defaultHTTPTimeout = 60 * time.Second
)

// ErrEmptyReply is returned when the model responds without any text content.
var ErrEmptyReply = errors.New("llm: model returned no text content")

// Anthropic is a Client backed by the Anthropic Messages API.
type Anthropic struct {
	// APIKey authenticates requests (x-api-key header).
	APIKey string
	// Model is the model identifier, e.g. "claude-sonnet-4-5".
	Model string
	// BaseURL overrides the API endpoint; tests point it at a local server.
	BaseURL string
	// MaxTokens caps the reply length; zero means the package default.
	MaxTokens int
	// Temperature is the sampling temperature; nil means the package default.
	Temperature *float64
	// HTTPClient overrides the transport; nil gets a client with a sane timeout.
	HTTPClient *http.Client
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      Usage              `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Converse implements Client against the Messages API.
func (a *Anthropic) Converse(ctx context.Context, system string, messages []Message) (*Reply, error) {
	body := anthropicRequest{
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		Temperature: defaultTemperature,
		System:      system,
		Messages:    messages,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	if a.Temperature != nil {
		body.Temperature = *a.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}

	base := a.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: call model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("llm: api error %d (%s): %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("llm: api error %d", resp.StatusCode)
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}

	var sb strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, ErrEmptyReply
	}

	return &Reply{
		Text:       sb.String(),
		StopReason: out.StopReason,
		Usage:      out.Usage,
	}, nil
}
