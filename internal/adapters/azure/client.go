package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
)

const apiVersion = "7.0"

// Client talks to Azure DevOps work item tracking with PAT auth.
type Client struct {
	org     string
	project string
	pat     string
	hc      *http.Client
	log     zerolog.Logger
}

func New(org, project, pat string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		org:     org,
		project: project,
		pat:     pat,
		hc:      &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "azure").Logger(),
	}
}

// IsWorkItemID reports whether an issue id names an Azure DevOps work item:
// either a bare numeric id or an "ADO-" prefixed one.
func IsWorkItemID(id string) bool {
	if strings.HasPrefix(id, "ADO-") {
		return true
	}
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NumericID strips the ADO- prefix if present.
func NumericID(id string) string {
	return strings.TrimPrefix(id, "ADO-")
}

func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("https://dev.azure.com/%s/%s/_apis%s", c.org, c.project, path)
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body []byte, out any) error {
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
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return errs.Wrap(errs.Upstream, err, "build azure request")
		}
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(":"+c.pat)))
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = errs.Wrap(errs.Upstream, err, "azure %s", method)
			continue
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errs.New(errs.NotFound, "azure work item not found")
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
			return errs.New(errs.PermissionDenied, "azure status %d", resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.log.Warn().Int("status", resp.StatusCode).Msg("azure transient error, retrying")
			lastErr = errs.New(errs.Upstream, "azure status %d", resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			snip := data
			if len(snip) > 300 {
				snip = snip[:300]
			}
			return errs.New(errs.Upstream, "azure status %d: %s", resp.StatusCode, snip)
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return errs.Wrap(errs.Parse, err, "decode azure response")
		}
		return nil
	}
	return lastErr
}

type workItemPayload struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

func field(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if name, ok := t["displayName"].(string); ok {
			return name
		}
	}
	return ""
}

// GetWorkItem fetches one work item and normalizes it to the shared story
// shape. The story key uses the ADO- prefix so later stages can route back
// to this backend.
func (c *Client) GetWorkItem(ctx context.Context, id string) (*domain.Story, error) {
	num := NumericID(id)
	url := c.apiURL("/wit/workitems/" + num + "?api-version=" + apiVersion)
	var p workItemPayload
	if err := c.do(ctx, http.MethodGet, url, "", nil, &p); err != nil {
		return nil, err
	}

	s := &domain.Story{
		ID:          num,
		Key:         "ADO-" + num,
		Summary:     field(p.Fields, "System.Title"),
		Description: stripHTML(field(p.Fields, "System.Description")),
		IssueType:   field(p.Fields, "System.WorkItemType"),
		Status:      field(p.Fields, "System.State"),
		ProjectKey:  field(p.Fields, "System.TeamProject"),
		Assignee:    field(p.Fields, "System.AssignedTo"),
		Reporter:    field(p.Fields, "System.CreatedBy"),
		Priority:    field(p.Fields, "Microsoft.VSTS.Common.Priority"),
	}
	if tags := field(p.Fields, "System.Tags"); tags != "" {
		for _, t := range strings.Split(tags, ";") {
			if t = strings.TrimSpace(t); t != "" {
				s.Labels = append(s.Labels, t)
			}
		}
	}
	if ac := field(p.Fields, "Microsoft.VSTS.Common.AcceptanceCriteria"); ac != "" {
		s.CustomFields = map[string]any{"acceptance_criteria": stripHTML(ac)}
	}
	return s, nil
}

// stripHTML flattens the rich-text HTML Azure stores into plain text good
// enough for prompting.
func stripHTML(s string) string {
	replacer := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n", "</div>", "\n", "&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">")
	s = replacer.Replace(s)
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// UpdateField sets one work item field through a JSON patch document.
func (c *Client) UpdateField(ctx context.Context, id, fieldRef, value string) error {
	body, err := json.Marshal([]patchOp{{Op: "add", Path: "/fields/" + fieldRef, Value: value}})
	if err != nil {
		return errs.Wrap(errs.Validation, err, "marshal azure patch")
	}
	url := c.apiURL("/wit/workitems/" + NumericID(id) + "?api-version=" + apiVersion)
	return c.do(ctx, http.MethodPatch, url, "application/json-patch+json", body, nil)
}

// AddComment posts a discussion comment on the work item.
func (c *Client) AddComment(ctx context.Context, id, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return errs.Wrap(errs.Validation, err, "marshal azure comment")
	}
	url := c.apiURL("/wit/workItems/" + NumericID(id) + "/comments?api-version=7.0-preview.3")
	return c.do(ctx, http.MethodPost, url, "application/json", body, nil)
}

// PublishAcceptanceCriteria writes the feature text into the acceptance
// criteria field (or description, per fieldRef) as preformatted HTML.
func (c *Client) PublishAcceptanceCriteria(ctx context.Context, id string, ac *domain.AcceptanceCriteria, fieldRef string) error {
	html := "<pre>" + htmlEscape(ac.ToGherkinText()) + "</pre>"
	return c.UpdateField(ctx, id, fieldRef, html)
}

// PublishTestScenarios posts the suite summary as a work item comment.
func (c *Client) PublishTestScenarios(ctx context.Context, id string, suite *domain.TestSuite) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Test Scenarios (Generated)</h2><p>Total: %d (positive %d, negative %d, edge %d)</p>",
		suite.TotalScenarios, suite.PositiveCount, suite.NegativeCount, suite.EdgeCaseCount)
	for i := range suite.Scenarios {
		sc := &suite.Scenarios[i]
		fmt.Fprintf(&b, "<h3>%s</h3><p>%s / %s</p><ol>", htmlEscape(sc.Title), sc.Type, sc.Priority)
		for _, st := range sc.Steps {
			fmt.Fprintf(&b, "<li>%s (expect: %s)</li>", htmlEscape(st.Action), htmlEscape(st.ExpectedResult))
		}
		b.WriteString("</ol>")
	}
	return c.AddComment(ctx, id, b.String())
}

func htmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
