package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/adapters/azure"
	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
	"github.com/qaforge/qaforge/internal/repo"
)

type jiraPort interface {
	GetIssue(ctx context.Context, key string) (*domain.Story, error)
	PublishAcceptanceCriteria(ctx context.Context, key string, ac *domain.AcceptanceCriteria, mode domain.PublishMode, acFieldID string) error
	PublishTestScenarios(ctx context.Context, story *domain.Story, suite *domain.TestSuite, mode domain.PublishMode) ([]string, error)
}

type azurePort interface {
	GetWorkItem(ctx context.Context, id string) (*domain.Story, error)
	PublishAcceptanceCriteria(ctx context.Context, id string, ac *domain.AcceptanceCriteria, fieldRef string) error
	PublishTestScenarios(ctx context.Context, id string, suite *domain.TestSuite) error
}

type generatorPort interface {
	GenerateAcceptanceCriteria(ctx context.Context, story *domain.Story) (*domain.AcceptanceCriteria, error)
	GenerateScenarios(ctx context.Context, story *domain.Story, ac *domain.AcceptanceCriteria) (*domain.TestSuite, error)
}

type coderPort interface {
	GenerateCode(ctx context.Context, story *domain.Story, sc *domain.TestScenario) string
}

type historyPort interface {
	InsertHistory(ctx context.Context, e *repo.HistoryEntry) error
}

// GeneratorOptions carries the static knobs of the standalone generation
// endpoints.
type GeneratorOptions struct {
	ACFieldID    string
	AzureACField string
	CodeGenDelay time.Duration
}

// Generator serves the single-artifact endpoints that bypass the full
// pipeline: acceptance criteria only, or test scenarios only.
type Generator struct {
	jira    jiraPort
	azure   azurePort
	gen     generatorPort
	coder   coderPort
	audit   *Audit
	history historyPort
	opts    GeneratorOptions
	log     zerolog.Logger
}

func NewGenerator(jp jiraPort, ap azurePort, gen generatorPort, coder coderPort, audit *Audit, history historyPort, opts GeneratorOptions, log zerolog.Logger) *Generator {
	return &Generator{
		jira:    jp,
		azure:   ap,
		gen:     gen,
		coder:   coder,
		audit:   audit,
		history: history,
		opts:    opts,
		log:     log.With().Str("component", "generator").Logger(),
	}
}

// recordHistory persists a standalone generation fire-and-forget, matching
// the audit trail's failure policy.
func (g *Generator) recordHistory(e *repo.HistoryEntry) {
	if g.history == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.history.InsertHistory(ctx, e); err != nil {
			g.log.Warn().Err(err).Str("issue", e.IssueID).Msg("history insert failed")
		}
	}()
}

// StoryRef points at a story either by ticket id or as raw text. Raw text
// gets a synthetic key so downstream artifacts still have a stable anchor,
// but nothing can be published for it.
type StoryRef struct {
	IssueID     string `json:"issue_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func (r StoryRef) synthetic() bool { return r.IssueID == "" }

// ResolveStory turns a reference into a normalized story, routing ticket ids
// to the right backend.
func (g *Generator) ResolveStory(ctx context.Context, ref StoryRef) (*domain.Story, error) {
	switch {
	case ref.IssueID != "":
		if azure.IsWorkItemID(ref.IssueID) {
			return g.azure.GetWorkItem(ctx, ref.IssueID)
		}
		return g.jira.GetIssue(ctx, ref.IssueID)
	case strings.TrimSpace(ref.Title) != "":
		return &domain.Story{
			ID:          uuid.NewString(),
			Key:         "STORY-" + uuid.NewString()[:8],
			Summary:     strings.TrimSpace(ref.Title),
			Description: ref.Description,
			IssueType:   "Story",
		}, nil
	default:
		return nil, errs.New(errs.Validation, "either issue_id or title is required")
	}
}

type ACRequest struct {
	StoryRef
	Publish bool               `json:"publish"`
	Mode    domain.PublishMode `json:"publish_mode,omitempty"`
	UserID  string             `json:"user_id,omitempty"`
}

type ACResult struct {
	Story     *domain.Story              `json:"story"`
	Criteria  *domain.AcceptanceCriteria `json:"acceptance_criteria"`
	Gherkin   string                     `json:"gherkin"`
	Published bool                       `json:"published"`
}

func (g *Generator) GenerateAcceptanceCriteria(ctx context.Context, req ACRequest) (*ACResult, error) {
	story, err := g.ResolveStory(ctx, req.StoryRef)
	if err != nil {
		return nil, err
	}
	ac, err := g.gen.GenerateAcceptanceCriteria(ctx, story)
	if err != nil {
		return nil, err
	}
	res := &ACResult{Story: story, Criteria: ac, Gherkin: ac.ToGherkinText()}

	if req.Publish && !req.synthetic() {
		mode := req.Mode
		if mode == "" {
			mode = domain.PublishDescription
		}
		if azure.IsWorkItemID(req.IssueID) {
			err = g.azure.PublishAcceptanceCriteria(ctx, req.IssueID, ac, g.opts.AzureACField)
		} else {
			err = g.jira.PublishAcceptanceCriteria(ctx, story.Key, ac, mode, g.opts.ACFieldID)
		}
		if err != nil {
			return res, err
		}
		res.Published = true
	}

	g.recordHistory(&repo.HistoryEntry{
		IssueID:  story.Key,
		UserID:   req.UserID,
		Provider: ac.LLMProvider,
		Success:  true,
		ACCount:  len(ac.Scenarios),
	})
	g.audit.Log(req.UserID, "generate.acceptance_criteria", story.Key, map[string]any{
		"scenarios": len(ac.Scenarios),
		"published": res.Published,
	})
	return res, nil
}

type TestRequest struct {
	StoryRef
	IncludeCode bool               `json:"include_code"`
	Publish     bool               `json:"publish"`
	Mode        domain.PublishMode `json:"publish_mode,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
}

type TestResult struct {
	Story         *domain.Story     `json:"story"`
	Suite         *domain.TestSuite `json:"test_suite"`
	PublishedKeys []string          `json:"published_keys,omitempty"`
}

func (g *Generator) GenerateTestScenarios(ctx context.Context, req TestRequest) (*TestResult, error) {
	story, err := g.ResolveStory(ctx, req.StoryRef)
	if err != nil {
		return nil, err
	}
	suite, err := g.gen.GenerateScenarios(ctx, story, nil)
	if err != nil {
		return nil, err
	}

	if req.IncludeCode {
		for i := range suite.Scenarios {
			if i > 0 && g.opts.CodeGenDelay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(g.opts.CodeGenDelay):
				}
			}
			suite.Scenarios[i].PlaywrightCode = g.coder.GenerateCode(ctx, story, &suite.Scenarios[i])
		}
	}
	res := &TestResult{Story: story, Suite: suite}

	if req.Publish && !req.synthetic() {
		mode := req.Mode
		if mode == "" {
			mode = domain.PublishSubtask
		}
		if azure.IsWorkItemID(req.IssueID) {
			if err := g.azure.PublishTestScenarios(ctx, req.IssueID, suite); err != nil {
				return res, err
			}
			res.PublishedKeys = []string{story.Key}
		} else {
			keys, err := g.jira.PublishTestScenarios(ctx, story, suite, mode)
			res.PublishedKeys = keys
			if err != nil {
				return res, err
			}
		}
	}

	g.recordHistory(&repo.HistoryEntry{
		IssueID:   story.Key,
		UserID:    req.UserID,
		Provider:  suite.LLMProvider,
		Success:   true,
		TestCount: suite.TotalScenarios,
	})
	g.audit.Log(req.UserID, "generate.test_scenarios", story.Key, map[string]any{
		"scenarios": suite.TotalScenarios,
		"published": len(res.PublishedKeys),
	})
	return res, nil
}
