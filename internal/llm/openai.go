package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/errs"
)

type openaiClient struct {
	cli   openai.Client
	model string
	log   zerolog.Logger
}

func NewOpenAI(apiKey, model string, log zerolog.Logger) Client {
	return &openaiClient{
		cli:   openai.NewClient(option.WithAPIKey(apiKey)),
		model: model,
		log:   log.With().Str("component", "llm").Str("provider", "openai").Logger(),
	}
}

func (c *openaiClient) Provider() string { return "openai" }

func (c *openaiClient) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	return withRetry(ctx, func() (*Response, bool, error) {
		msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
		if opts.System != "" {
			msgs = append(msgs, openai.SystemMessage(opts.System))
		}
		msgs = append(msgs, openai.UserMessage(prompt))

		params := openai.ChatCompletionNewParams{
			Model:    shared.ChatModel(c.model),
			Messages: msgs,
		}
		if opts.Temperature > 0 {
			params.Temperature = openai.Float(opts.Temperature)
		}
		if opts.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(opts.MaxTokens))
		}

		resp, err := c.cli.Chat.Completions.New(ctx, params)
		if err != nil {
			var apierr *openai.Error
			if errors.As(err, &apierr) {
				switch {
				case apierr.StatusCode == 404:
					return nil, false, errs.Wrap(errs.NotFound, err, "openai model %s", c.model)
				case apierr.StatusCode == 429 || apierr.StatusCode >= 500:
					c.log.Warn().Int("status", apierr.StatusCode).Msg("openai transient error, retrying")
					return nil, true, errs.Wrap(errs.Upstream, err, "openai status %d", apierr.StatusCode)
				}
			}
			return nil, false, errs.Wrap(errs.Upstream, err, "openai completion")
		}
		if len(resp.Choices) == 0 {
			return nil, false, errs.New(errs.Upstream, "openai returned no choices")
		}
		return &Response{
			Content:  resp.Choices[0].Message.Content,
			Model:    c.model,
			Provider: "openai",
			Usage: Usage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
			},
			FinishReason: string(resp.Choices[0].FinishReason),
		}, false, nil
	})
}

func (c *openaiClient) GenerateJSON(ctx context.Context, prompt string, opts Options, out any) (*Response, error) {
	resp, err := c.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	if err := DecodeJSON(resp.Content, out); err != nil {
		return nil, err
	}
	return resp, nil
}
