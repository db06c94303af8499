package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/qaforge/qaforge/internal/adapters/azure"
	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
	"github.com/qaforge/qaforge/internal/repo"
)

// Stage names, in execution order.
const (
	StageFetchStory     = "fetch_story"
	StageGenerateAC     = "generate_ac"
	StageGenerateTests  = "generate_tests"
	StageCodeReview     = "code_review"
	StageGitopsWrite    = "gitops_write"
	StageGitopsPush     = "gitops_push"
	StagePublishResults = "publish_results"
	StageFinalize       = "finalize"
)

var stageOrder = []string{
	StageFetchStory, StageGenerateAC, StageGenerateTests, StageCodeReview,
	StageGitopsWrite, StageGitopsPush, StagePublishResults, StageFinalize,
}

type JiraPort interface {
	GetIssue(ctx context.Context, key string) (*domain.Story, error)
	PublishAcceptanceCriteria(ctx context.Context, key string, ac *domain.AcceptanceCriteria, mode domain.PublishMode, acFieldID string) error
	PublishTestScenarios(ctx context.Context, story *domain.Story, suite *domain.TestSuite, mode domain.PublishMode) ([]string, error)
}

type AzurePort interface {
	GetWorkItem(ctx context.Context, id string) (*domain.Story, error)
	PublishAcceptanceCriteria(ctx context.Context, id string, ac *domain.AcceptanceCriteria, fieldRef string) error
	PublishTestScenarios(ctx context.Context, id string, suite *domain.TestSuite) error
}

type Generator interface {
	GenerateAcceptanceCriteria(ctx context.Context, story *domain.Story) (*domain.AcceptanceCriteria, error)
	GenerateScenarios(ctx context.Context, story *domain.Story, ac *domain.AcceptanceCriteria) (*domain.TestSuite, error)
}

type CodeWriter interface {
	GenerateCode(ctx context.Context, story *domain.Story, sc *domain.TestScenario) string
}

type CodeReviewer interface {
	Review(ctx context.Context, sc *domain.TestScenario) domain.ReviewSummary
}

type GitPort interface {
	WriteTestFiles(suite *domain.TestSuite) ([]string, error)
	CommitAndPush(ctx context.Context, storyKey string, files []string) error
}

type Store interface {
	InsertHistory(ctx context.Context, e *repo.HistoryEntry) error
	InsertAudit(ctx context.Context, e *repo.AuditEntry) error
}

// Options carries the static pipeline configuration.
type Options struct {
	Provider      string
	ACFieldID     string
	AzureACField  string
	AutoPush      bool
	CodeGenDelay  time.Duration
	ReviewWorkers int
}

// Request is one pipeline invocation. Zero-value publish modes fall back to
// description (acceptance criteria) and subtask (tests).
type Request struct {
	IssueID     string             `json:"issue_id"`
	UserID      string             `json:"user_id,omitempty"`
	Publish     bool               `json:"publish"`
	PushGit     bool               `json:"push_git"`
	ACMode      domain.PublishMode `json:"ac_publish_mode,omitempty"`
	TestMode    domain.PublishMode `json:"test_publish_mode,omitempty"`
	GenerateAC  bool               `json:"generate_ac"`
	GenerateTst bool               `json:"generate_tests"`
}

// Result aggregates everything one run produced.
type Result struct {
	RunID              string                     `json:"run_id"`
	IssueID            string                     `json:"issue_id"`
	Backend            string                     `json:"backend"`
	Success            bool                       `json:"success"`
	Steps              []Step                     `json:"steps"`
	AcceptanceCriteria *domain.AcceptanceCriteria `json:"acceptance_criteria,omitempty"`
	Suite              *domain.TestSuite          `json:"test_suite,omitempty"`
	Reviews            []domain.ReviewSummary     `json:"reviews,omitempty"`
	PublishedKeys      []string                   `json:"published_keys,omitempty"`
	Error              string                     `json:"error,omitempty"`
	StartedAt          time.Time                  `json:"started_at"`
	FinishedAt         time.Time                  `json:"finished_at"`
}

// Orchestrator runs the generation pipeline end to end. Runs for the same
// issue are serialized: a second request while one is in flight is rejected.
type Orchestrator struct {
	jira     JiraPort
	azure    AzurePort
	gen      Generator
	coder    CodeWriter
	reviewer CodeReviewer
	git      GitPort
	store    Store
	opts     Options
	log      zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewOrchestrator(jp JiraPort, ap AzurePort, gen Generator, coder CodeWriter, rev CodeReviewer, git GitPort, store Store, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.ReviewWorkers <= 0 {
		opts.ReviewWorkers = 4
	}
	return &Orchestrator{
		jira:     jp,
		azure:    ap,
		gen:      gen,
		coder:    coder,
		reviewer: rev,
		git:      git,
		store:    store,
		opts:     opts,
		log:      log.With().Str("component", "pipeline").Logger(),
		inFlight: make(map[string]struct{}),
	}
}

func (o *Orchestrator) acquire(issueID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[issueID]; busy {
		return errs.New(errs.Validation, "a pipeline run for %s is already in flight", issueID)
	}
	o.inFlight[issueID] = struct{}{}
	return nil
}

func (o *Orchestrator) release(issueID string) {
	o.mu.Lock()
	delete(o.inFlight, issueID)
	o.mu.Unlock()
}

// Run executes the full pipeline for one issue. It always returns a Result,
// and the result is always persisted to history, failures included.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.IssueID) == "" {
		return nil, errs.New(errs.Validation, "issue_id is required")
	}
	if err := o.acquire(req.IssueID); err != nil {
		return nil, err
	}
	defer o.release(req.IssueID)

	res := &Result{
		RunID:     uuid.NewString(),
		IssueID:   req.IssueID,
		Backend:   backendFor(req.IssueID),
		StartedAt: time.Now().UTC(),
	}
	steps := make(map[string]*Step, len(stageOrder))
	for _, name := range stageOrder {
		steps[name] = NewStep(name)
	}

	log := o.log.With().Str("run_id", res.RunID).Str("issue", req.IssueID).Logger()
	log.Info().Str("backend", res.Backend).Msg("pipeline started")

	defer func() {
		o.finalize(res, steps)
		o.persist(res, req)
		log.Info().Bool("success", res.Success).
			Dur("took", res.FinishedAt.Sub(res.StartedAt)).
			Str("error", res.Error).
			Msg("pipeline finished")
	}()

	story, ok := o.fetchStory(ctx, req, res, steps)
	if !ok {
		o.skipRemaining(steps, StageGenerateAC, "story fetch failed")
		return res, nil
	}

	ac, ok := o.generateAC(ctx, req, story, res, steps)
	if !ok {
		o.skipRemaining(steps, StageGenerateTests, "acceptance criteria failed")
		return res, nil
	}

	suite, ok := o.generateTests(ctx, req, story, ac, res, steps)
	if !ok {
		o.skipRemaining(steps, StageCodeReview, "test generation failed")
		return res, nil
	}

	o.reviewCode(ctx, suite, res, steps)
	files := o.writeTests(suite, res, steps)
	o.pushTests(ctx, req, suite, files, steps)
	o.publish(ctx, req, story, ac, suite, res, steps)
	return res, nil
}

func backendFor(issueID string) string {
	if azure.IsWorkItemID(issueID) {
		return "azure"
	}
	return "jira"
}

func (o *Orchestrator) fetchStory(ctx context.Context, req Request, res *Result, steps map[string]*Step) (*domain.Story, bool) {
	st := steps[StageFetchStory]
	st.Start()
	var (
		story *domain.Story
		err   error
	)
	if res.Backend == "azure" {
		story, err = o.azure.GetWorkItem(ctx, req.IssueID)
	} else {
		story, err = o.jira.GetIssue(ctx, req.IssueID)
	}
	if err != nil {
		st.Fail(err)
		res.Error = err.Error()
		return nil, false
	}
	st.Complete(fmt.Sprintf("%s: %s", story.Key, story.Summary))
	return story, true
}

func (o *Orchestrator) generateAC(ctx context.Context, req Request, story *domain.Story, res *Result, steps map[string]*Step) (*domain.AcceptanceCriteria, bool) {
	st := steps[StageGenerateAC]
	if !req.GenerateAC {
		st.Skip("acceptance criteria not requested")
		return nil, true
	}
	st.Start()
	ac, err := o.gen.GenerateAcceptanceCriteria(ctx, story)
	if err != nil {
		st.Fail(err)
		res.Error = err.Error()
		return nil, false
	}
	res.AcceptanceCriteria = ac
	st.Complete(fmt.Sprintf("%d scenarios", len(ac.Scenarios)))
	return ac, true
}

func (o *Orchestrator) generateTests(ctx context.Context, req Request, story *domain.Story, ac *domain.AcceptanceCriteria, res *Result, steps map[string]*Step) (*domain.TestSuite, bool) {
	st := steps[StageGenerateTests]
	if !req.GenerateTst {
		st.Skip("test scenarios not requested")
		return nil, true
	}
	st.Start()
	suite, err := o.gen.GenerateScenarios(ctx, story, ac)
	if err != nil {
		st.Fail(err)
		res.Error = err.Error()
		return nil, false
	}

	// Code generation is sequential with a pause between calls so a large
	// suite does not trip provider rate limits.
	for i := range suite.Scenarios {
		if i > 0 && o.opts.CodeGenDelay > 0 {
			select {
			case <-ctx.Done():
				st.Fail(ctx.Err())
				res.Error = ctx.Err().Error()
				return nil, false
			case <-time.After(o.opts.CodeGenDelay):
			}
		}
		suite.Scenarios[i].PlaywrightCode = o.coder.GenerateCode(ctx, story, &suite.Scenarios[i])
	}

	res.Suite = suite
	st.Complete(fmt.Sprintf("%d scenarios, %d with code", suite.TotalScenarios, countValidCode(suite)))
	return suite, true
}

func countValidCode(suite *domain.TestSuite) int {
	n := 0
	for i := range suite.Scenarios {
		if suite.Scenarios[i].HasValidCode() {
			n++
		}
	}
	return n
}

// reviewCode fans reviews out across workers. Review never returns an error,
// so the group only short-circuits on context cancellation; each worker
// records its result by index and a failing review of one scenario leaves
// the others untouched.
func (o *Orchestrator) reviewCode(ctx context.Context, suite *domain.TestSuite, res *Result, steps map[string]*Step) {
	st := steps[StageCodeReview]
	if suite == nil || len(suite.Scenarios) == 0 {
		st.Skip("no scenarios to review")
		return
	}
	st.Start()

	reviews := make([]domain.ReviewSummary, len(suite.Scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.ReviewWorkers)
	for i := range suite.Scenarios {
		g.Go(func() error {
			reviews[i] = o.reviewer.Review(gctx, &suite.Scenarios[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		st.Fail(err)
		return
	}

	approved := 0
	for i := range reviews {
		if reviews[i].FinalCode != "" {
			suite.Scenarios[i].PlaywrightCode = reviews[i].FinalCode
		}
		if reviews[i].Approved {
			approved++
		}
	}
	res.Reviews = reviews
	st.Complete(fmt.Sprintf("%d/%d approved", approved, len(reviews)))
}

func (o *Orchestrator) writeTests(suite *domain.TestSuite, res *Result, steps map[string]*Step) []string {
	st := steps[StageGitopsWrite]
	if suite == nil || countValidCode(suite) == 0 {
		st.Skip("no valid code to write")
		return nil
	}
	st.Start()
	files, err := o.git.WriteTestFiles(suite)
	if err != nil {
		st.Fail(err)
		if res.Error == "" {
			res.Error = err.Error()
		}
		return files
	}
	st.Complete(fmt.Sprintf("%d files", len(files)))
	return files
}

func (o *Orchestrator) pushTests(ctx context.Context, req Request, suite *domain.TestSuite, files []string, steps map[string]*Step) {
	st := steps[StageGitopsPush]
	switch {
	case len(files) == 0:
		st.Skip("nothing written")
		return
	case !req.PushGit && !o.opts.AutoPush:
		st.Skip("git push disabled")
		return
	}
	st.Start()
	if err := o.git.CommitAndPush(ctx, suite.StoryKey, files); err != nil {
		// Missing remote configuration is a deployment choice, not a run
		// failure.
		if errs.Is(err, errs.Validation) {
			st.Skip(err.Error())
			return
		}
		st.Fail(err)
		return
	}
	st.Complete(fmt.Sprintf("%d files pushed", len(files)))
}

func (o *Orchestrator) publish(ctx context.Context, req Request, story *domain.Story, ac *domain.AcceptanceCriteria, suite *domain.TestSuite, res *Result, steps map[string]*Step) {
	st := steps[StagePublishResults]
	if !req.Publish {
		st.Skip("publishing disabled")
		return
	}
	if ac == nil && suite == nil {
		st.Skip("nothing to publish")
		return
	}
	st.Start()

	acMode := req.ACMode
	if acMode == "" {
		acMode = domain.PublishDescription
	}
	testMode := req.TestMode
	if testMode == "" {
		testMode = domain.PublishSubtask
	}

	var failures []string
	if res.Backend == "azure" {
		if ac != nil {
			if err := o.azure.PublishAcceptanceCriteria(ctx, req.IssueID, ac, o.opts.AzureACField); err != nil {
				failures = append(failures, "acceptance criteria: "+err.Error())
			}
		}
		if suite != nil {
			if err := o.azure.PublishTestScenarios(ctx, req.IssueID, suite); err != nil {
				failures = append(failures, "test scenarios: "+err.Error())
			} else {
				res.PublishedKeys = append(res.PublishedKeys, story.Key)
			}
		}
	} else {
		if ac != nil {
			if err := o.jira.PublishAcceptanceCriteria(ctx, story.Key, ac, acMode, o.opts.ACFieldID); err != nil {
				failures = append(failures, "acceptance criteria: "+err.Error())
			}
		}
		if suite != nil {
			keys, err := o.jira.PublishTestScenarios(ctx, story, suite, testMode)
			res.PublishedKeys = append(res.PublishedKeys, keys...)
			if err != nil {
				failures = append(failures, "test scenarios: "+err.Error())
			}
		}
	}

	if len(failures) > 0 {
		err := errs.New(errs.Upstream, "publish: %s", strings.Join(failures, "; "))
		st.Fail(err)
		if res.Error == "" {
			res.Error = err.Error()
		}
		return
	}
	st.Complete(fmt.Sprintf("%d artifacts published", len(res.PublishedKeys)))
}

// finalize runs unconditionally. Success means every stage either completed
// or was skipped.
func (o *Orchestrator) finalize(res *Result, steps map[string]*Step) {
	st := steps[StageFinalize]
	st.Start()

	success := true
	for _, name := range stageOrder {
		if name == StageFinalize {
			continue
		}
		if steps[name].Status == StepFailed {
			success = false
		}
		if steps[name].Status == StepPending || steps[name].Status == StepRunning {
			steps[name].Skip("not reached")
		}
	}
	res.Success = success
	st.Complete("")

	res.Steps = res.Steps[:0]
	for _, name := range stageOrder {
		res.Steps = append(res.Steps, *steps[name])
	}
	res.FinishedAt = time.Now().UTC()
}

func (o *Orchestrator) skipRemaining(steps map[string]*Step, from, reason string) {
	seen := false
	for _, name := range stageOrder {
		if name == from {
			seen = true
		}
		if !seen || name == StageFinalize {
			continue
		}
		steps[name].Skip(reason)
	}
}

// persist writes the run to history and the audit trail with a fresh
// context, so a cancelled request still leaves a record.
func (o *Orchestrator) persist(res *Result, req Request) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stepsJSON, _ := json.Marshal(res.Steps)
	entry := &repo.HistoryEntry{
		IssueID:    res.IssueID,
		UserID:     req.UserID,
		Success:    res.Success,
		Error:      res.Error,
		Steps:      stepsJSON,
		DurationMS: res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	}
	if res.AcceptanceCriteria != nil {
		entry.ACCount = len(res.AcceptanceCriteria.Scenarios)
		entry.Provider = res.AcceptanceCriteria.LLMProvider
	}
	if res.Suite != nil {
		entry.TestCount = res.Suite.TotalScenarios
		entry.Provider = res.Suite.LLMProvider
	}
	if err := o.store.InsertHistory(ctx, entry); err != nil {
		o.log.Error().Err(err).Str("run_id", res.RunID).Msg("persist history failed")
	}

	detail, _ := json.Marshal(map[string]any{"run_id": res.RunID, "backend": res.Backend, "success": res.Success})
	audit := &repo.AuditEntry{
		Actor:  req.UserID,
		Action: "pipeline.run",
		Target: res.IssueID,
		Detail: detail,
	}
	if err := o.store.InsertAudit(ctx, audit); err != nil {
		o.log.Warn().Err(err).Str("run_id", res.RunID).Msg("persist audit failed")
	}
}
