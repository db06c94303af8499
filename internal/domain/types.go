package domain

import "time"

// Story is the normalized ticket shape shared by every ticketing backend.
type Story struct {
	ID           string         `json:"id"`
	Key          string         `json:"key"`
	Summary      string         `json:"summary"`
	Description  string         `json:"description"`
	IssueType    string         `json:"issue_type"`
	Status       string         `json:"status"`
	ProjectKey   string         `json:"project_key"`
	Assignee     string         `json:"assignee,omitempty"`
	Reporter     string         `json:"reporter,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	Components   []string       `json:"components,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

type ScenarioType string

const (
	ScenarioPositive    ScenarioType = "positive"
	ScenarioNegative    ScenarioType = "negative"
	ScenarioEdgeCase    ScenarioType = "edge_case"
	ScenarioSecurity    ScenarioType = "security"
	ScenarioPerformance ScenarioType = "performance"
	ScenarioDataDriven  ScenarioType = "data-driven"
)

type PublishMode string

const (
	PublishSubtask     PublishMode = "subtask"
	PublishComment     PublishMode = "comment"
	PublishCustomField PublishMode = "custom_field"
	PublishDescription PublishMode = "description"
	PublishEnvironment PublishMode = "environment"
)

// CodeErrorMarker prefixes generated code that is actually an error
// placeholder. Downstream stages detect it with a prefix check, never by
// catching an error.
const CodeErrorMarker = "// ⚠️"

type TestStep struct {
	Order          int    `json:"order"`
	Action         string `json:"action"`
	ExpectedResult string `json:"expected_result"`
	TestData       string `json:"test_data,omitempty"`
}

type TestScenario struct {
	ID                    string       `json:"id"`
	Title                 string       `json:"title"`
	Description           string       `json:"description"`
	Type                  ScenarioType `json:"type"`
	Priority              string       `json:"priority"`
	Preconditions         []string     `json:"preconditions,omitempty"`
	Steps                 []TestStep   `json:"steps"`
	AcceptanceCriteriaRef string       `json:"acceptance_criteria_ref"`
	Tags                  []string     `json:"tags,omitempty"`
	EstimatedMinutes      int          `json:"estimated_duration_minutes"`
	PlaywrightCode        string       `json:"playwright_code,omitempty"`
}

// HasValidCode reports whether generated code exists and is not an error
// placeholder.
func (s *TestScenario) HasValidCode() bool {
	return s.PlaywrightCode != "" && !IsCodeError(s.PlaywrightCode)
}

func IsCodeError(code string) bool {
	return len(code) >= len(CodeErrorMarker) && code[:len(CodeErrorMarker)] == CodeErrorMarker
}

// TestSuite holds the scenarios for one story. The counts are derived from
// the scenario list and must never be set independently; mutate Scenarios and
// call Recount.
type TestSuite struct {
	StoryKey       string         `json:"story_key"`
	SuiteName      string         `json:"suite_name"`
	Scenarios      []TestScenario `json:"scenarios"`
	TotalScenarios int            `json:"total_scenarios"`
	PositiveCount  int            `json:"positive_count"`
	NegativeCount  int            `json:"negative_count"`
	EdgeCaseCount  int            `json:"edge_case_count"`
	GeneratedAt    time.Time      `json:"generated_at"`
	LLMProvider    string         `json:"llm_provider"`
}

func NewTestSuite(storyKey, name string, scenarios []TestScenario, provider string) *TestSuite {
	ts := &TestSuite{
		StoryKey:    storyKey,
		SuiteName:   name,
		Scenarios:   scenarios,
		GeneratedAt: time.Now().UTC(),
		LLMProvider: provider,
	}
	ts.Recount()
	return ts
}

func (t *TestSuite) Recount() {
	t.TotalScenarios = len(t.Scenarios)
	t.PositiveCount, t.NegativeCount, t.EdgeCaseCount = 0, 0, 0
	for _, s := range t.Scenarios {
		switch s.Type {
		case ScenarioPositive:
			t.PositiveCount++
		case ScenarioNegative:
			t.NegativeCount++
		case ScenarioEdgeCase:
			t.EdgeCaseCount++
		}
	}
}

// ReviewSummary is the per-scenario outcome of the code-review stage.
type ReviewSummary struct {
	ScenarioID          string         `json:"scenario_id"`
	Title               string         `json:"title"`
	Approved            bool           `json:"approved"`
	OverallScore        int            `json:"score"`
	Scores              map[string]int `json:"scores,omitempty"`
	IssuesFound         []string       `json:"issues,omitempty"`
	ImprovementsApplied []string       `json:"improvements,omitempty"`
	FinalCode           string         `json:"-"`
}
