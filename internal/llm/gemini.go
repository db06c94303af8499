package llm

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/qaforge/qaforge/internal/errs"
)

type geminiClient struct {
	cli   *genai.Client
	model string
	log   zerolog.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, log zerolog.Logger) (Client, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "init gemini client")
	}
	return &geminiClient{
		cli:   cli,
		model: model,
		log:   log.With().Str("component", "llm").Str("provider", "gemini").Logger(),
	}, nil
}

func (c *geminiClient) Provider() string { return "gemini" }

func (c *geminiClient) generate(ctx context.Context, prompt string, opts Options, jsonMode bool) (*Response, error) {
	return withRetry(ctx, func() (*Response, bool, error) {
		cfg := &genai.GenerateContentConfig{}
		if opts.System != "" {
			cfg.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
		}
		if opts.Temperature > 0 {
			t := float32(opts.Temperature)
			cfg.Temperature = &t
		}
		if opts.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if jsonMode {
			cfg.ResponseMIMEType = "application/json"
		}

		contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
		resp, err := c.cli.Models.GenerateContent(ctx, c.model, contents, cfg)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) {
				switch {
				case apiErr.Code == 404:
					return nil, false, errs.Wrap(errs.NotFound, err, "gemini model %s", c.model)
				case apiErr.Code == 429 || apiErr.Code >= 500:
					c.log.Warn().Int("status", apiErr.Code).Msg("gemini transient error, retrying")
					return nil, true, errs.Wrap(errs.Upstream, err, "gemini status %d", apiErr.Code)
				}
			}
			return nil, false, errs.Wrap(errs.Upstream, err, "gemini generate")
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return nil, false, errs.New(errs.Upstream, "gemini returned no candidates")
		}

		out := &Response{
			Content:  resp.Candidates[0].Content.Parts[0].Text,
			Model:    c.model,
			Provider: "gemini",
		}
		out.FinishReason = string(resp.Candidates[0].FinishReason)
		if resp.UsageMetadata != nil {
			out.Usage = Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}
		return out, false, nil
	})
}

func (c *geminiClient) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	return c.generate(ctx, prompt, opts, false)
}

func (c *geminiClient) GenerateJSON(ctx context.Context, prompt string, opts Options, out any) (*Response, error) {
	resp, err := c.generate(ctx, prompt, opts, true)
	if err != nil {
		return nil, err
	}
	if err := DecodeJSON(resp.Content, out); err != nil {
		return nil, err
	}
	return resp, nil
}
