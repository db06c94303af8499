package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/llm"
)

// Reviewer grades and repairs generated automation code.
type Reviewer struct {
	llm       llm.Client
	maxTokens int
	log       zerolog.Logger
}

func NewReviewer(cli llm.Client, maxTokens int, log zerolog.Logger) *Reviewer {
	return &Reviewer{
		llm:       cli,
		maxTokens: maxTokens,
		log:       log.With().Str("agent", "reviewer").Logger(),
	}
}

type reviewWire struct {
	Approved            bool           `json:"approved"`
	Scores              map[string]int `json:"scores"`
	OverallScore        int            `json:"overall_score"`
	IssuesFound         []string       `json:"issues_found"`
	ImprovementsApplied []string       `json:"improvements_applied"`
	ImprovedCode        string         `json:"improved_code"`
}

// Review never fails the pipeline. Error placeholders are rejected outright
// without spending a model call. When the review call itself fails, the code
// passes through approved with a logged issue rather than blocking the run.
func (r *Reviewer) Review(ctx context.Context, sc *domain.TestScenario) domain.ReviewSummary {
	sum := domain.ReviewSummary{
		ScenarioID: sc.ID,
		Title:      sc.Title,
		FinalCode:  sc.PlaywrightCode,
	}

	if domain.IsCodeError(sc.PlaywrightCode) {
		sum.Approved = false
		sum.OverallScore = 0
		sum.IssuesFound = []string{"code generation failed upstream, nothing to review"}
		return sum
	}

	var wire reviewWire
	_, err := r.llm.GenerateJSON(ctx, reviewPrompt(sc, sc.PlaywrightCode), llm.Options{
		System:      reviewSystemPrompt,
		Temperature: 0.1,
		MaxTokens:   r.maxTokens,
	}, &wire)
	if err != nil {
		r.log.Warn().Err(err).Str("scenario", sc.ID).Msg("review failed, passing code through")
		sum.Approved = true
		sum.OverallScore = 5
		sum.IssuesFound = []string{fmt.Sprintf("Review agent error: %v", err)}
		return sum
	}

	sum.Approved = wire.Approved
	sum.OverallScore = wire.OverallScore
	sum.Scores = wire.Scores
	sum.IssuesFound = wire.IssuesFound
	sum.ImprovementsApplied = wire.ImprovementsApplied
	if code := strings.TrimSpace(stripCodeFences(wire.ImprovedCode)); code != "" {
		sum.FinalCode = code
	}
	return sum
}
