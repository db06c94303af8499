package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/errs"
)

// New builds the client named by cfg.LLMProvider. Unknown provider names
// are a configuration mistake, not an upstream condition.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, errs.New(errs.Validation, "OPENAI_API_KEY not set")
		}
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, log), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, errs.New(errs.Validation, "GEMINI_API_KEY not set")
		}
		return NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel, log)
	case "claude":
		if cfg.ClaudeKey == "" {
			return nil, errs.New(errs.Validation, "CLAUDE_API_KEY not set")
		}
		return NewClaude(cfg.ClaudeKey, cfg.ClaudeModel, cfg.LLMTimeout, log), nil
	default:
		return nil, errs.New(errs.Validation, "unknown LLM provider %q", cfg.LLMProvider)
	}
}

// Providers lists the known providers and whether each has credentials
// configured.
func Providers(cfg config.Config) map[string]bool {
	return map[string]bool{
		"openai": cfg.OpenAIKey != "",
		"gemini": cfg.GeminiKey != "",
		"claude": cfg.ClaudeKey != "",
	}
}
