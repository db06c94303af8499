package llm

import (
	"context"
	"time"

	"github.com/qaforge/qaforge/internal/errs"
)

// Options tunes a single generation call.
type Options struct {
	System      string
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Client is the provider-agnostic generation surface. GenerateJSON must
// tolerate fenced or chatter-wrapped output and return errs.Parse when no
// valid JSON can be recovered.
type Client interface {
	Generate(ctx context.Context, prompt string, opts Options) (*Response, error)
	GenerateJSON(ctx context.Context, prompt string, opts Options, out any) (*Response, error)
	Provider() string
}

const maxAttempts = 3

// withRetry runs fn up to maxAttempts times with exponential backoff.
// fn reports whether its error is worth retrying; non-retryable errors and
// errs.NotFound fail immediately.
func withRetry(ctx context.Context, fn func() (*Response, bool, error)) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
			}
		}
		resp, retryable, err := fn()
		if err == nil {
			return resp, nil
		}
		if !retryable || errs.Is(err, errs.NotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
