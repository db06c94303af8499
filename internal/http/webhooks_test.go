package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/pipeline"
	"github.com/qaforge/qaforge/internal/services"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []pipeline.Request
	ran  chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{ran: make(chan struct{}, 8)}
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	f.ran <- struct{}{}
	return &pipeline.Result{IssueID: req.IssueID, Success: true}, nil
}

func (f *fakeRunner) last(t *testing.T) pipeline.Request {
	t.Helper()
	select {
	case <-f.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline was not invoked")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakeAnalyst struct{ called chan *domain.Story }

func (f *fakeAnalyst) GenerateAcceptanceCriteria(ctx context.Context, story *domain.Story) (*domain.AcceptanceCriteria, error) {
	f.called <- story
	return &domain.AcceptanceCriteria{StoryKey: story.Key, FeatureName: story.Summary}, nil
}

func (f *fakeAnalyst) GenerateScenarios(ctx context.Context, story *domain.Story, ac *domain.AcceptanceCriteria) (*domain.TestSuite, error) {
	return domain.NewTestSuite(story.Key, "suite", nil, "fake"), nil
}

func newWebhookServer(t *testing.T, runner *fakeRunner, analyst *fakeAnalyst, projects []string) *httptest.Server {
	t.Helper()
	var gen *services.Generator
	if analyst != nil {
		gen = services.NewGenerator(nil, nil, analyst, nil, nil, nil, services.GeneratorOptions{}, zerolog.Nop())
	}
	h := NewHandlers(gen, nil, runner, nil, nil, HandlersConfig{
		AppEnv:          "test",
		Provider:        "fake",
		WebhookProjects: projects,
	}, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(h, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, headers map[string]string, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestJiraWebhookIgnoresOtherEvents(t *testing.T) {
	srv := newWebhookServer(t, newFakeRunner(), nil, nil)
	code, body := post(t, srv.URL+"/webhooks/jira", nil, `{"webhookEvent": "jira:issue_updated", "issue": {"key": "PROJ-1"}}`)
	if code != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("code=%d body=%v", code, body)
	}
}

func TestJiraWebhookQueuesPipeline(t *testing.T) {
	runner := newFakeRunner()
	srv := newWebhookServer(t, runner, nil, nil)

	code, body := post(t, srv.URL+"/webhooks/jira", nil, `{
		"webhookEvent": "jira:issue_created",
		"issue": {"key": "PROJ-9", "fields": {"project": {"key": "PROJ"}, "issuetype": {"name": "Story"}}}
	}`)
	if code != http.StatusAccepted || body["status"] != "queued" {
		t.Fatalf("code=%d body=%v", code, body)
	}
	req := runner.last(t)
	if req.IssueID != "PROJ-9" || !req.Publish || !req.GenerateAC || !req.GenerateTst {
		t.Fatalf("pipeline request = %+v", req)
	}
}

func TestJiraWebhookProjectFilter(t *testing.T) {
	runner := newFakeRunner()
	srv := newWebhookServer(t, runner, nil, []string{"CORE"})

	code, body := post(t, srv.URL+"/webhooks/jira", nil, `{
		"webhookEvent": "jira:issue_created",
		"issue": {"key": "OTHER-1", "fields": {"project": {"key": "OTHER"}}}
	}`)
	if code != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("code=%d body=%v", code, body)
	}
	select {
	case <-runner.ran:
		t.Fatal("pipeline ran for filtered project")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAzureWebhookGating(t *testing.T) {
	runner := newFakeRunner()
	srv := newWebhookServer(t, runner, nil, nil)

	code, body := post(t, srv.URL+"/webhooks/azure-devops", nil, `{"eventType": "workitem.updated", "resource": {"id": 7}}`)
	if code != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("update event: code=%d body=%v", code, body)
	}

	code, body = post(t, srv.URL+"/webhooks/azure-devops", nil, `{"eventType": "workitem.created", "resource": {"id": 77}}`)
	if code != http.StatusAccepted || body["issue_id"] != "ADO-77" {
		t.Fatalf("create event: code=%d body=%v", code, body)
	}
	if req := runner.last(t); req.IssueID != "ADO-77" {
		t.Fatalf("pipeline request = %+v", req)
	}
}

func TestGitHubWebhookGating(t *testing.T) {
	analyst := &fakeAnalyst{called: make(chan *domain.Story, 1)}
	srv := newWebhookServer(t, newFakeRunner(), analyst, nil)

	issueBody := `{"action": "opened", "issue": {"number": 12, "title": "Add SSO", "body": "Support SAML login"}}`

	code, body := post(t, srv.URL+"/webhooks/github", map[string]string{"X-GitHub-Event": "push"}, issueBody)
	if code != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("push event: code=%d body=%v", code, body)
	}

	code, body = post(t, srv.URL+"/webhooks/github", map[string]string{"X-GitHub-Event": "issues"},
		`{"action": "closed", "issue": {"number": 12, "title": "Add SSO"}}`)
	if code != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("closed action: code=%d body=%v", code, body)
	}

	code, _ = post(t, srv.URL+"/webhooks/github", map[string]string{"X-GitHub-Event": "issues"}, issueBody)
	if code != http.StatusAccepted {
		t.Fatalf("opened action: code=%d", code)
	}
	select {
	case story := <-analyst.called:
		if story.Summary != "Add SSO" || !strings.HasPrefix(story.Key, "STORY-") {
			t.Fatalf("story = %+v", story)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("generator was not invoked")
	}
}

func TestPipelineEndpointValidation(t *testing.T) {
	srv := newWebhookServer(t, newFakeRunner(), nil, nil)
	code, body := post(t, srv.URL+"/generate/pipeline", nil, `{"publish": true}`)
	if code != http.StatusBadRequest {
		t.Fatalf("code=%d body=%v", code, body)
	}
}

func TestPipelineAsyncQueues(t *testing.T) {
	runner := newFakeRunner()
	srv := newWebhookServer(t, runner, nil, nil)

	code, body := post(t, srv.URL+"/generate/pipeline/async", nil, `{"issue_id": "PROJ-3"}`)
	if code != http.StatusAccepted || body["status"] != "queued" {
		t.Fatalf("code=%d body=%v", code, body)
	}
	req := runner.last(t)
	if req.IssueID != "PROJ-3" {
		t.Fatalf("request = %+v", req)
	}
	// Artifact kinds default on when the body does not mention them.
	if !req.GenerateAC || !req.GenerateTst {
		t.Fatalf("defaults lost: %+v", req)
	}
}
