package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
	"github.com/qaforge/qaforge/internal/llm"
)

// Analyst produces acceptance criteria and test scenarios from a story.
type Analyst struct {
	llm         llm.Client
	temperature float64
	maxTokens   int
	log         zerolog.Logger
}

func NewAnalyst(cli llm.Client, temperature float64, maxTokens int, log zerolog.Logger) *Analyst {
	return &Analyst{
		llm:         cli,
		temperature: temperature,
		maxTokens:   maxTokens,
		log:         log.With().Str("agent", "analyst").Logger(),
	}
}

type acWire struct {
	FeatureName string   `json:"feature_name"`
	Background  []string `json:"background"`
	Scenarios   []struct {
		Title     string     `json:"title"`
		Given     []string   `json:"given"`
		When      []string   `json:"when"`
		Then      []string   `json:"then"`
		Tags      []string   `json:"tags"`
		IsOutline bool       `json:"is_outline"`
		Examples  [][]string `json:"examples"`
	} `json:"scenarios"`
}

func (a *Analyst) GenerateAcceptanceCriteria(ctx context.Context, story *domain.Story) (*domain.AcceptanceCriteria, error) {
	start := time.Now()
	var wire acWire
	resp, err := a.llm.GenerateJSON(ctx, acPrompt(story), llm.Options{
		System:      acSystemPrompt,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}, &wire)
	if err != nil {
		return nil, err
	}
	if len(wire.Scenarios) == 0 {
		return nil, errs.New(errs.Parse, "model returned no acceptance-criteria scenarios")
	}

	ac := &domain.AcceptanceCriteria{
		StoryKey:    story.Key,
		FeatureName: wire.FeatureName,
		Background:  wire.Background,
		GeneratedAt: time.Now().UTC(),
		LLMProvider: resp.Provider,
	}
	if ac.FeatureName == "" {
		ac.FeatureName = story.Summary
	}
	for _, s := range wire.Scenarios {
		ac.Scenarios = append(ac.Scenarios, domain.GherkinScenario{
			Title:     s.Title,
			Given:     s.Given,
			When:      s.When,
			Then:      s.Then,
			Tags:      s.Tags,
			IsOutline: s.IsOutline,
			Examples:  s.Examples,
		})
	}
	a.log.Info().Str("story", story.Key).Int("scenarios", len(ac.Scenarios)).
		Dur("took", time.Since(start)).Int("tokens", resp.Usage.TotalTokens).
		Msg("acceptance criteria generated")
	return ac, nil
}

type suiteWire struct {
	SuiteName string                `json:"suite_name"`
	Scenarios []domain.TestScenario `json:"scenarios"`
}

func (a *Analyst) GenerateScenarios(ctx context.Context, story *domain.Story, ac *domain.AcceptanceCriteria) (*domain.TestSuite, error) {
	start := time.Now()
	var wire suiteWire
	resp, err := a.llm.GenerateJSON(ctx, scenariosPrompt(story, ac), llm.Options{
		System:      scenariosSystemPrompt,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}, &wire)
	if err != nil {
		return nil, err
	}
	if len(wire.Scenarios) == 0 {
		return nil, errs.New(errs.Parse, "model returned no test scenarios")
	}

	for i := range wire.Scenarios {
		sc := &wire.Scenarios[i]
		if sc.ID == "" {
			sc.ID = fmt.Sprintf("TS-%03d", i+1)
		}
		for j := range sc.Steps {
			if sc.Steps[j].Order == 0 {
				sc.Steps[j].Order = j + 1
			}
		}
	}
	name := wire.SuiteName
	if name == "" {
		name = "Test suite for " + story.Key
	}
	suite := domain.NewTestSuite(story.Key, name, wire.Scenarios, resp.Provider)
	a.log.Info().Str("story", story.Key).Int("scenarios", suite.TotalScenarios).
		Dur("took", time.Since(start)).Int("tokens", resp.Usage.TotalTokens).
		Msg("test scenarios generated")
	return suite, nil
}
