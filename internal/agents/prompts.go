package agents

import (
	"fmt"
	"strings"

	"github.com/qaforge/qaforge/internal/domain"
)

const acSystemPrompt = `You are a senior QA analyst. You turn user stories into precise,
testable acceptance criteria in Gherkin. Respond with JSON only, no prose and
no markdown fences.`

const acSchema = `{
  "feature_name": "short feature name",
  "background": ["optional shared Given steps"],
  "scenarios": [
    {
      "title": "scenario title",
      "given": ["precondition steps"],
      "when": ["action steps"],
      "then": ["outcome steps"],
      "tags": ["@smoke"],
      "is_outline": false,
      "examples": [["header1", "header2"], ["value1", "value2"]]
    }
  ]
}`

func acPrompt(story *domain.Story) string {
	var b strings.Builder
	b.WriteString("Write acceptance criteria for this user story.\n\n")
	writeStory(&b, story)
	b.WriteString("\nRules:\n")
	b.WriteString("- Cover the happy path, failure modes, and boundary conditions.\n")
	b.WriteString("- Each scenario must be independently executable.\n")
	b.WriteString("- Use Scenario Outline with examples when the same flow varies only by data.\n")
	b.WriteString("\nReturn JSON matching exactly this shape:\n" + acSchema + "\n")
	return b.String()
}

const scenariosSystemPrompt = `You are a senior QA engineer designing manual test scenarios.
You produce thorough, unambiguous test cases a junior tester could execute.
Respond with JSON only, no prose and no markdown fences.`

const scenariosSchema = `{
  "suite_name": "suite name",
  "scenarios": [
    {
      "id": "TS-001",
      "title": "scenario title",
      "description": "what this verifies",
      "type": "positive|negative|edge_case|security|performance|data-driven",
      "priority": "critical|high|medium|low",
      "preconditions": ["setup state"],
      "steps": [
        {"order": 1, "action": "do X", "expected_result": "Y happens", "test_data": "optional"}
      ],
      "acceptance_criteria_ref": "title of the AC scenario this covers",
      "tags": ["@regression"],
      "estimated_duration_minutes": 5
    }
  ]
}`

func scenariosPrompt(story *domain.Story, ac *domain.AcceptanceCriteria) string {
	var b strings.Builder
	b.WriteString("Design test scenarios for this user story.\n\n")
	writeStory(&b, story)
	if ac != nil && len(ac.Scenarios) > 0 {
		b.WriteString("\nAcceptance criteria to cover:\n")
		b.WriteString(ac.ToGherkinText())
		b.WriteString("\n")
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Every acceptance criterion needs at least one scenario referencing it.\n")
	b.WriteString("- Mix positive, negative and edge_case types; add security or performance ones only where the story warrants them.\n")
	b.WriteString("- Steps must name concrete actions and observable results.\n")
	b.WriteString("\nReturn JSON matching exactly this shape:\n" + scenariosSchema + "\n")
	return b.String()
}

const automationSystemPrompt = `You are a senior test automation engineer writing Playwright
tests in TypeScript. You write resilient tests with role-based locators, web-first
assertions, and no hard-coded waits. Respond with code only: a single complete
.spec.ts file, no explanations and no markdown fences.`

func automationPrompt(story *domain.Story, sc *domain.TestScenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a Playwright TypeScript test for this scenario from story %s (%s).\n\n", story.Key, story.Summary)
	fmt.Fprintf(&b, "Scenario: %s\nType: %s\nDescription: %s\n", sc.Title, sc.Type, sc.Description)
	if len(sc.Preconditions) > 0 {
		b.WriteString("Preconditions:\n")
		for _, pc := range sc.Preconditions {
			b.WriteString("- " + pc + "\n")
		}
	}
	b.WriteString("Steps:\n")
	for _, st := range sc.Steps {
		fmt.Fprintf(&b, "%d. %s => %s", st.Order, st.Action, st.ExpectedResult)
		if st.TestData != "" {
			fmt.Fprintf(&b, " (data: %s)", st.TestData)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRequirements:\n")
	b.WriteString("- Use test.describe and test blocks with the scenario title.\n")
	b.WriteString("- Prefer getByRole/getByLabel/getByTestId locators.\n")
	b.WriteString("- Assert every expected result with expect().\n")
	b.WriteString("- Read base URL and credentials from process.env, never literals.\n")
	return b.String()
}

const reviewSystemPrompt = `You are a principal engineer reviewing Playwright test code.
You judge correctness against the scenario, robustness of locators and waits,
maintainability, and assertion coverage. You fix what you can. Respond with
JSON only, no prose and no markdown fences.`

const reviewSchema = `{
  "approved": true,
  "scores": {
    "correctness": 8,
    "robustness": 7,
    "maintainability": 8,
    "locator_quality": 7,
    "assertion_coverage": 8
  },
  "overall_score": 8,
  "issues_found": ["issue descriptions"],
  "improvements_applied": ["what was changed"],
  "improved_code": "full corrected .spec.ts source, or empty string if no changes"
}`

func reviewPrompt(sc *domain.TestScenario, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review this Playwright test against its scenario.\n\nScenario: %s\n", sc.Title)
	b.WriteString("Expected steps:\n")
	for _, st := range sc.Steps {
		fmt.Fprintf(&b, "%d. %s => %s\n", st.Order, st.Action, st.ExpectedResult)
	}
	b.WriteString("\nCode:\n```\n" + code + "\n```\n")
	b.WriteString("\nScore each dimension 0-10. Approve only when overall_score >= 7 and no\n")
	b.WriteString("correctness issues remain. When you fix issues, return the complete\n")
	b.WriteString("corrected file in improved_code.\n")
	b.WriteString("\nReturn JSON matching exactly this shape:\n" + reviewSchema + "\n")
	return b.String()
}

func writeStory(b *strings.Builder, story *domain.Story) {
	fmt.Fprintf(b, "Story %s: %s\n", story.Key, story.Summary)
	if story.IssueType != "" {
		fmt.Fprintf(b, "Type: %s\n", story.IssueType)
	}
	if story.Priority != "" {
		fmt.Fprintf(b, "Priority: %s\n", story.Priority)
	}
	if len(story.Labels) > 0 {
		fmt.Fprintf(b, "Labels: %s\n", strings.Join(story.Labels, ", "))
	}
	if story.Description != "" {
		fmt.Fprintf(b, "\nDescription:\n%s\n", story.Description)
	}
	if story.CustomFields != nil {
		if ac, ok := story.CustomFields["acceptance_criteria"].(string); ok && ac != "" {
			fmt.Fprintf(b, "\nExisting acceptance criteria field:\n%s\n", ac)
		}
	}
}
