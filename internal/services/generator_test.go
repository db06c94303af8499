package services

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
)

type stubJira struct {
	story  *domain.Story
	pubAC  int
	pubTst int
}

func (s *stubJira) GetIssue(ctx context.Context, key string) (*domain.Story, error) {
	if s.story == nil {
		return nil, errs.New(errs.NotFound, "issue %s not found", key)
	}
	return s.story, nil
}

func (s *stubJira) PublishAcceptanceCriteria(ctx context.Context, key string, ac *domain.AcceptanceCriteria, mode domain.PublishMode, fieldID string) error {
	s.pubAC++
	return nil
}

func (s *stubJira) PublishTestScenarios(ctx context.Context, story *domain.Story, suite *domain.TestSuite, mode domain.PublishMode) ([]string, error) {
	s.pubTst++
	return []string{"PROJ-2"}, nil
}

type stubGen struct{}

func (stubGen) GenerateAcceptanceCriteria(ctx context.Context, story *domain.Story) (*domain.AcceptanceCriteria, error) {
	return &domain.AcceptanceCriteria{
		StoryKey:    story.Key,
		FeatureName: story.Summary,
		Scenarios:   []domain.GherkinScenario{{Title: "ok"}},
		LLMProvider: "fake",
	}, nil
}

func (stubGen) GenerateScenarios(ctx context.Context, story *domain.Story, ac *domain.AcceptanceCriteria) (*domain.TestSuite, error) {
	return domain.NewTestSuite(story.Key, "suite", []domain.TestScenario{
		{ID: "TS-001", Title: "a", Type: domain.ScenarioPositive},
	}, "fake"), nil
}

type stubCoder struct{ calls int }

func (s *stubCoder) GenerateCode(ctx context.Context, story *domain.Story, sc *domain.TestScenario) string {
	s.calls++
	return "code"
}

func newTestGenerator(jp *stubJira, coder *stubCoder) *Generator {
	if coder == nil {
		coder = &stubCoder{}
	}
	return NewGenerator(jp, nil, stubGen{}, coder, nil, nil, GeneratorOptions{}, zerolog.Nop())
}

func TestResolveStoryRequiresInput(t *testing.T) {
	g := newTestGenerator(&stubJira{}, nil)
	_, err := g.ResolveStory(context.Background(), StoryRef{})
	if !errs.Is(err, errs.Validation) {
		t.Fatalf("error = %v, want Validation", err)
	}
}

func TestResolveStorySynthetic(t *testing.T) {
	g := newTestGenerator(&stubJira{}, nil)
	story, err := g.ResolveStory(context.Background(), StoryRef{Title: "  Raw story  ", Description: "details"})
	if err != nil {
		t.Fatalf("ResolveStory: %v", err)
	}
	if !strings.HasPrefix(story.Key, "STORY-") || len(story.Key) != len("STORY-")+8 {
		t.Fatalf("synthetic key = %q", story.Key)
	}
	if story.Summary != "Raw story" || story.Description != "details" {
		t.Fatalf("story = %+v", story)
	}
}

func TestGenerateACSyntheticNeverPublishes(t *testing.T) {
	jp := &stubJira{}
	g := newTestGenerator(jp, nil)

	res, err := g.GenerateAcceptanceCriteria(context.Background(), ACRequest{
		StoryRef: StoryRef{Title: "Raw"},
		Publish:  true,
	})
	if err != nil {
		t.Fatalf("GenerateAcceptanceCriteria: %v", err)
	}
	if res.Published || jp.pubAC != 0 {
		t.Fatalf("synthetic story published: %+v, pubAC=%d", res, jp.pubAC)
	}
	if !strings.Contains(res.Gherkin, "Feature:") {
		t.Fatalf("gherkin = %q", res.Gherkin)
	}
}

func TestGenerateACPublishesTicketStory(t *testing.T) {
	jp := &stubJira{story: &domain.Story{Key: "PROJ-1", Summary: "Login"}}
	g := newTestGenerator(jp, nil)

	res, err := g.GenerateAcceptanceCriteria(context.Background(), ACRequest{
		StoryRef: StoryRef{IssueID: "PROJ-1"},
		Publish:  true,
	})
	if err != nil {
		t.Fatalf("GenerateAcceptanceCriteria: %v", err)
	}
	if !res.Published || jp.pubAC != 1 {
		t.Fatalf("published=%v pubAC=%d", res.Published, jp.pubAC)
	}
}

func TestGenerateTestScenariosCodeFlag(t *testing.T) {
	jp := &stubJira{story: &domain.Story{Key: "PROJ-1", Summary: "Login"}}
	coder := &stubCoder{}
	g := newTestGenerator(jp, coder)

	res, err := g.GenerateTestScenarios(context.Background(), TestRequest{
		StoryRef: StoryRef{IssueID: "PROJ-1"},
	})
	if err != nil {
		t.Fatalf("GenerateTestScenarios: %v", err)
	}
	if coder.calls != 0 {
		t.Fatalf("code generated without include_code")
	}
	if res.Suite.TotalScenarios != 1 {
		t.Fatalf("suite = %+v", res.Suite)
	}

	_, err = g.GenerateTestScenarios(context.Background(), TestRequest{
		StoryRef:    StoryRef{IssueID: "PROJ-1"},
		IncludeCode: true,
	})
	if err != nil {
		t.Fatalf("GenerateTestScenarios with code: %v", err)
	}
	if coder.calls != 1 {
		t.Fatalf("coder calls = %d, want 1", coder.calls)
	}
}
