package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
)

// Client talks to Jira Cloud over its REST API with basic auth.
type Client struct {
	baseURL string
	email   string
	token   string
	hc      *http.Client
	log     zerolog.Logger

	mu          sync.Mutex
	fieldID     string // cached automation field id
	subtaskType string
}

func New(baseURL, email, token, subtaskType string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		email:       email,
		token:       token,
		subtaskType: subtaskType,
		hc:          &http.Client{Timeout: timeout},
		log:         log.With().Str("component", "jira").Logger(),
	}
}

func (c *Client) apiURL(path string) string { return c.baseURL + path }

// doJSON issues one authenticated request, retrying 429 and 5xx responses
// with exponential backoff. A nil out skips response decoding.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.Validation, err, "marshal jira request")
		}
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
			}
		}

		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL(path), rd)
		if err != nil {
			return errs.Wrap(errs.Upstream, err, "build jira request")
		}
		req.SetBasicAuth(c.email, c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = errs.Wrap(errs.Upstream, err, "jira %s %s", method, path)
			continue
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errs.New(errs.NotFound, "jira %s: not found", path)
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
			return errs.New(errs.PermissionDenied, "jira %s: status %d", path, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("jira transient error, retrying")
			lastErr = errs.New(errs.Upstream, "jira %s: status %d", path, resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			return errs.New(errs.Upstream, "jira %s: status %d: %s", path, resp.StatusCode, truncate(data, 300))
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return errs.Wrap(errs.Parse, err, "decode jira response")
		}
		return nil
	}
	return lastErr
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

type issuePayload struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		IssueType   struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Reporter *struct {
			DisplayName string `json:"displayName"`
		} `json:"reporter"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority"`
		Labels     []string `json:"labels"`
		Components []struct {
			Name string `json:"name"`
		} `json:"components"`
		Created string `json:"created"`
		Updated string `json:"updated"`
	} `json:"fields"`
}

const jiraTime = "2006-01-02T15:04:05.000-0700"

func (p *issuePayload) toStory() *domain.Story {
	s := &domain.Story{
		ID:          p.ID,
		Key:         p.Key,
		Summary:     p.Fields.Summary,
		Description: p.Fields.Description,
		IssueType:   p.Fields.IssueType.Name,
		Status:      p.Fields.Status.Name,
		ProjectKey:  p.Fields.Project.Key,
		Labels:      p.Fields.Labels,
	}
	if p.Fields.Assignee != nil {
		s.Assignee = p.Fields.Assignee.DisplayName
	}
	if p.Fields.Reporter != nil {
		s.Reporter = p.Fields.Reporter.DisplayName
	}
	if p.Fields.Priority != nil {
		s.Priority = p.Fields.Priority.Name
	}
	for _, comp := range p.Fields.Components {
		s.Components = append(s.Components, comp.Name)
	}
	if t, err := time.Parse(jiraTime, p.Fields.Created); err == nil {
		s.CreatedAt = &t
	}
	if t, err := time.Parse(jiraTime, p.Fields.Updated); err == nil {
		s.UpdatedAt = &t
	}
	return s
}

func (c *Client) GetIssue(ctx context.Context, key string) (*domain.Story, error) {
	var p issuePayload
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key), nil, &p); err != nil {
		return nil, err
	}
	return p.toStory(), nil
}

// SearchIssues runs a JQL query and returns normalized stories.
func (c *Client) SearchIssues(ctx context.Context, jql string, limit int) ([]*domain.Story, error) {
	if limit <= 0 {
		limit = 20
	}
	path := fmt.Sprintf("/rest/api/2/search?jql=%s&maxResults=%d", url.QueryEscape(jql), limit)
	var res struct {
		Issues []issuePayload `json:"issues"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	stories := make([]*domain.Story, 0, len(res.Issues))
	for i := range res.Issues {
		stories = append(stories, res.Issues[i].toStory())
	}
	return stories, nil
}

func (c *Client) UpdateDescription(ctx context.Context, key, description string) error {
	body := map[string]any{"fields": map[string]any{"description": description}}
	return c.doJSON(ctx, http.MethodPut, "/rest/api/2/issue/"+url.PathEscape(key), body, nil)
}

func (c *Client) AddComment(ctx context.Context, key, comment string) error {
	body := map[string]any{"body": comment}
	return c.doJSON(ctx, http.MethodPost, "/rest/api/2/issue/"+url.PathEscape(key)+"/comment", body, nil)
}

func (c *Client) UpdateCustomField(ctx context.Context, key, fieldID, value string) error {
	body := map[string]any{"fields": map[string]any{fieldID: value}}
	return c.doJSON(ctx, http.MethodPut, "/rest/api/2/issue/"+url.PathEscape(key), body, nil)
}

func (c *Client) UpdateEnvironmentField(ctx context.Context, key, value string) error {
	body := map[string]any{"fields": map[string]any{"environment": value}}
	return c.doJSON(ctx, http.MethodPut, "/rest/api/2/issue/"+url.PathEscape(key), body, nil)
}

// CreateSubtask creates a subtask under parentKey and returns the new key.
func (c *Client) CreateSubtask(ctx context.Context, parentKey, projectKey, summary, description string) (string, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": projectKey},
			"parent":      map[string]string{"key": parentKey},
			"summary":     summary,
			"description": description,
			"issuetype":   map[string]string{"name": c.subtaskType},
		},
	}
	var res struct {
		Key string `json:"key"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/2/issue", body, &res); err != nil {
		return "", err
	}
	return res.Key, nil
}

// TransitionIssue moves the issue to the named status when such a transition
// is available. Matching is case-insensitive; a missing transition is not an
// error.
func (c *Client) TransitionIssue(ctx context.Context, key, statusName string) error {
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/transitions"
	var res struct {
		Transitions []struct {
			ID string `json:"id"`
			To struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return err
	}
	for _, tr := range res.Transitions {
		if strings.EqualFold(tr.To.Name, statusName) {
			body := map[string]any{"transition": map[string]string{"id": tr.ID}}
			return c.doJSON(ctx, http.MethodPost, path, body, nil)
		}
	}
	c.log.Debug().Str("issue", key).Str("status", statusName).Msg("no transition to requested status")
	return nil
}

// GetOrCreateAutomationField resolves the custom field used for automation
// status, creating it when absent. The resolved id is cached for the process
// lifetime.
func (c *Client) GetOrCreateAutomationField(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fieldID != "" {
		return c.fieldID, nil
	}

	var fields []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/3/field", nil, &fields); err != nil {
		return "", err
	}
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			c.fieldID = f.ID
			return f.ID, nil
		}
	}

	body := map[string]any{
		"name":        name,
		"description": "Automation status managed by qaforge",
		"type":        "com.atlassian.jira.plugin.system.customfieldtypes:textarea",
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/3/field", body, &created); err != nil {
		return "", err
	}
	c.log.Info().Str("field", name).Str("id", created.ID).Msg("created automation custom field")
	c.fieldID = created.ID
	return created.ID, nil
}
