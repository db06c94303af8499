package jira

import (
	"context"
	"fmt"
	"strings"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
)

const (
	acHeading           = "h2. Acceptance Criteria (Generated)"
	automationFieldName = "Automation Status"
	automationStatus    = "Automation Script"
)

// FormatAcceptanceCriteria renders the feature as Jira wiki markup.
func FormatAcceptanceCriteria(ac *domain.AcceptanceCriteria) string {
	var b strings.Builder
	b.WriteString(acHeading + "\n\n")
	b.WriteString("{code:language=gherkin}\n")
	b.WriteString(ac.ToGherkinText())
	b.WriteString("\n{code}\n\n")
	fmt.Fprintf(&b, "_Generated by %s at %s_\n", ac.LLMProvider, ac.GeneratedAt.Format("2006-01-02 15:04 MST"))
	return b.String()
}

// PublishAcceptanceCriteria writes the generated feature to the issue using
// the requested mode.
func (c *Client) PublishAcceptanceCriteria(ctx context.Context, key string, ac *domain.AcceptanceCriteria, mode domain.PublishMode, acFieldID string) error {
	formatted := FormatAcceptanceCriteria(ac)
	switch mode {
	case domain.PublishDescription:
		issue, err := c.GetIssue(ctx, key)
		if err != nil {
			return err
		}
		desc := stripGeneratedSection(issue.Description)
		if desc != "" {
			desc += "\n\n"
		}
		return c.UpdateDescription(ctx, key, desc+formatted)
	case domain.PublishComment:
		return c.AddComment(ctx, key, formatted)
	case domain.PublishCustomField:
		if acFieldID == "" {
			return errs.New(errs.Validation, "custom_field mode requires JIRA_AC_FIELD_ID")
		}
		return c.UpdateCustomField(ctx, key, acFieldID, ac.ToGherkinText())
	case domain.PublishEnvironment:
		return c.UpdateEnvironmentField(ctx, key, ac.ToGherkinText())
	default:
		return errs.New(errs.Validation, "unsupported acceptance-criteria publish mode %q", mode)
	}
}

// stripGeneratedSection drops a previously published block so repeated runs
// replace rather than accumulate.
func stripGeneratedSection(description string) string {
	idx := strings.Index(description, acHeading)
	if idx < 0 {
		return strings.TrimSpace(description)
	}
	return strings.TrimSpace(description[:idx])
}

func formatScenario(s *domain.TestScenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Type:* %s\n*Priority:* %s\n\n", s.Type, s.Priority)
	if s.Description != "" {
		b.WriteString(s.Description + "\n\n")
	}
	if len(s.Preconditions) > 0 {
		b.WriteString("h3. Preconditions\n")
		for _, pc := range s.Preconditions {
			b.WriteString("* " + pc + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("h3. Steps\n")
	b.WriteString("||Step||Action||Expected Result||Test Data||\n")
	for _, st := range s.Steps {
		fmt.Fprintf(&b, "|%d|%s|%s|%s|\n", st.Order, cell(st.Action), cell(st.ExpectedResult), cell(st.TestData))
	}
	if len(s.Tags) > 0 {
		b.WriteString("\n*Tags:* " + strings.Join(s.Tags, ", ") + "\n")
	}
	if s.HasValidCode() {
		b.WriteString("\nh3. Automation Script\n{code:language=javascript}\n")
		b.WriteString(s.PlaywrightCode)
		b.WriteString("\n{code}\n")
	}
	return b.String()
}

// cell escapes pipes so table rows stay intact.
func cell(s string) string {
	if s == "" {
		return " "
	}
	return strings.ReplaceAll(s, "|", "/")
}

// markAutomated records automation coverage on the subtask through the
// shared automation field. Best effort, like the status transition.
func (c *Client) markAutomated(ctx context.Context, key string) {
	fieldID, err := c.GetOrCreateAutomationField(ctx, automationFieldName)
	if err != nil {
		c.log.Warn().Err(err).Str("issue", key).Msg("automation field unavailable")
		return
	}
	if err := c.UpdateCustomField(ctx, key, fieldID, "Automated"); err != nil {
		c.log.Warn().Err(err).Str("issue", key).Msg("automation field update failed")
	}
}

// PublishTestScenarios writes the suite to Jira either as one subtask per
// scenario or as a single comment. In subtask mode each new issue is moved
// to the automation status when the workflow allows it; transition failures
// are logged and ignored.
func (c *Client) PublishTestScenarios(ctx context.Context, story *domain.Story, suite *domain.TestSuite, mode domain.PublishMode) ([]string, error) {
	switch mode {
	case domain.PublishSubtask:
		keys := make([]string, 0, len(suite.Scenarios))
		for i := range suite.Scenarios {
			sc := &suite.Scenarios[i]
			key, err := c.CreateSubtask(ctx, story.Key, story.ProjectKey, "[TEST] "+sc.Title, formatScenario(sc))
			if err != nil {
				return keys, err
			}
			if sc.HasValidCode() {
				if err := c.TransitionIssue(ctx, key, automationStatus); err != nil {
					c.log.Warn().Err(err).Str("issue", key).Msg("transition to automation status failed")
				}
				c.markAutomated(ctx, key)
			}
			keys = append(keys, key)
		}
		return keys, nil
	case domain.PublishComment:
		var b strings.Builder
		fmt.Fprintf(&b, "h2. Test Scenarios (Generated)\n\n*Total:* %d (positive %d, negative %d, edge %d)\n",
			suite.TotalScenarios, suite.PositiveCount, suite.NegativeCount, suite.EdgeCaseCount)
		for i := range suite.Scenarios {
			fmt.Fprintf(&b, "\n----\nh3. %s\n\n%s", suite.Scenarios[i].Title, formatScenario(&suite.Scenarios[i]))
		}
		if err := c.AddComment(ctx, story.Key, b.String()); err != nil {
			return nil, err
		}
		return []string{story.Key}, nil
	default:
		return nil, errs.New(errs.Validation, "unsupported test publish mode %q", mode)
	}
}
