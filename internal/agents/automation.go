package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/llm"
)

// Engineer writes Playwright automation code for a test scenario.
type Engineer struct {
	llm       llm.Client
	maxTokens int
	log       zerolog.Logger
}

func NewEngineer(cli llm.Client, maxTokens int, log zerolog.Logger) *Engineer {
	return &Engineer{
		llm:       cli,
		maxTokens: maxTokens,
		log:       log.With().Str("agent", "automation").Logger(),
	}
}

// GenerateCode never fails: when the model errors out it returns a commented
// placeholder carrying the error and the manual steps, so the pipeline keeps
// moving and the gap is visible in the published artifact.
func (e *Engineer) GenerateCode(ctx context.Context, story *domain.Story, sc *domain.TestScenario) string {
	resp, err := e.llm.Generate(ctx, automationPrompt(story, sc), llm.Options{
		System:      automationSystemPrompt,
		Temperature: 0.2,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("scenario", sc.ID).Msg("code generation failed, emitting placeholder")
		return errorPlaceholder(sc, err)
	}
	code := stripCodeFences(resp.Content)
	if strings.TrimSpace(code) == "" {
		e.log.Warn().Str("scenario", sc.ID).Msg("model returned empty code, emitting placeholder")
		return errorPlaceholder(sc, fmt.Errorf("model returned empty output"))
	}
	return code
}

func errorPlaceholder(sc *domain.TestScenario, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Code generation failed: %v\n", domain.CodeErrorMarker, err)
	fmt.Fprintf(&b, "// Scenario: %s\n", sc.Title)
	b.WriteString("// Manual steps:\n")
	for _, st := range sc.Steps {
		fmt.Fprintf(&b, "//   %d. %s => %s\n", st.Order, st.Action, st.ExpectedResult)
	}
	return b.String()
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if last := len(lines) - 1; last >= 0 && strings.HasPrefix(strings.TrimSpace(lines[last]), "```") {
		lines = lines[:last]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
