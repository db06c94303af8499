package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/errs"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

type claudeClient struct {
	hc     *http.Client
	apiKey string
	model  string
	log    zerolog.Logger
}

func NewClaude(apiKey, model string, timeout time.Duration, log zerolog.Logger) Client {
	return &claudeClient{
		hc:     &http.Client{Timeout: timeout},
		apiKey: apiKey,
		model:  model,
		log:    log.With().Str("component", "llm").Str("provider", "claude").Logger(),
	}
}

func (c *claudeClient) Provider() string { return "claude" }

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *claudeClient) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(claudeRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      opts.System,
		Temperature: opts.Temperature,
		Messages:    []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, errs.Wrap(errs.Validation, err, "marshal claude request")
	}

	return withRetry(ctx, func() (*Response, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicURL, bytes.NewReader(body))
		if err != nil {
			return nil, false, errs.Wrap(errs.Upstream, err, "build claude request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, true, errs.Wrap(errs.Upstream, err, "claude request")
		}
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<22))

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, false, errs.New(errs.NotFound, "claude model %s: %s", c.model, snippet(payload))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.log.Warn().Int("status", resp.StatusCode).Msg("claude transient error, retrying")
			return nil, true, errs.New(errs.Upstream, "claude status %d: %s", resp.StatusCode, snippet(payload))
		case resp.StatusCode != http.StatusOK:
			return nil, false, errs.New(errs.Upstream, "claude status %d: %s", resp.StatusCode, snippet(payload))
		}

		var parsed claudeResponse
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return nil, false, errs.Wrap(errs.Parse, err, "decode claude response")
		}
		if len(parsed.Content) == 0 {
			return nil, false, errs.New(errs.Upstream, "claude returned no content blocks")
		}
		return &Response{
			Content:  parsed.Content[0].Text,
			Model:    c.model,
			Provider: "claude",
			Usage: Usage{
				PromptTokens:     parsed.Usage.InputTokens,
				CompletionTokens: parsed.Usage.OutputTokens,
				TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
			},
			FinishReason: parsed.StopReason,
		}, false, nil
	})
}

func (c *claudeClient) GenerateJSON(ctx context.Context, prompt string, opts Options, out any) (*Response, error) {
	resp, err := c.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	if err := DecodeJSON(resp.Content, out); err != nil {
		return nil, err
	}
	return resp, nil
}

func snippet(b []byte) string {
	const max = 300
	if len(b) > max {
		return fmt.Sprintf("%s...", b[:max])
	}
	return string(b)
}
