package domain

import (
	"strings"
	"time"
)

// GherkinScenario is one scenario of an acceptance-criteria feature. Step
// order inside each slice is meaningful and preserved through rendering.
type GherkinScenario struct {
	Title     string     `json:"title"`
	Given     []string   `json:"given"`
	When      []string   `json:"when"`
	Then      []string   `json:"then"`
	Tags      []string   `json:"tags,omitempty"`
	IsOutline bool       `json:"is_outline,omitempty"`
	Examples  [][]string `json:"examples,omitempty"`
}

// AcceptanceCriteria is a full Gherkin feature generated for one story.
type AcceptanceCriteria struct {
	StoryKey    string            `json:"story_key"`
	FeatureName string            `json:"feature_name"`
	Background  []string          `json:"background,omitempty"`
	Scenarios   []GherkinScenario `json:"scenarios"`
	GeneratedAt time.Time         `json:"generated_at"`
	LLMProvider string            `json:"llm_provider"`
}

func (s *GherkinScenario) writeTo(b *strings.Builder, indent string) {
	if len(s.Tags) > 0 {
		b.WriteString(indent)
		b.WriteString(strings.Join(s.Tags, " "))
		b.WriteString("\n")
	}
	b.WriteString(indent)
	if s.IsOutline {
		b.WriteString("Scenario Outline: ")
	} else {
		b.WriteString("Scenario: ")
	}
	b.WriteString(s.Title)
	b.WriteString("\n")
	writeSteps(b, indent+"  ", "Given", s.Given)
	writeSteps(b, indent+"  ", "When", s.When)
	writeSteps(b, indent+"  ", "Then", s.Then)
	if s.IsOutline && len(s.Examples) > 0 {
		b.WriteString(indent + "  Examples:\n")
		for _, row := range s.Examples {
			b.WriteString(indent + "    | " + strings.Join(row, " | ") + " |\n")
		}
	}
}

func writeSteps(b *strings.Builder, indent, keyword string, steps []string) {
	for i, step := range steps {
		b.WriteString(indent)
		if i == 0 {
			b.WriteString(keyword)
		} else {
			b.WriteString("And")
		}
		b.WriteString(" ")
		b.WriteString(step)
		b.WriteString("\n")
	}
}

// ToGherkinText renders a single scenario without feature framing, for use
// in comments and test-case bodies.
func (s *GherkinScenario) ToGherkinText() string {
	var b strings.Builder
	s.writeTo(&b, "")
	return strings.TrimRight(b.String(), "\n")
}

// ToGherkinText renders the whole feature file.
func (ac *AcceptanceCriteria) ToGherkinText() string {
	var b strings.Builder
	b.WriteString("Feature: " + ac.FeatureName + "\n")
	if len(ac.Background) > 0 {
		b.WriteString("\n  Background:\n")
		writeSteps(&b, "    ", "Given", ac.Background)
	}
	for i := range ac.Scenarios {
		b.WriteString("\n")
		ac.Scenarios[i].writeTo(&b, "  ")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseScenarios reads scenario blocks out of rendered Gherkin text. It
// understands tags, Scenario/Scenario Outline headers, Given/When/Then with
// And continuations, and Examples tables. Feature and Background lines are
// skipped.
func ParseScenarios(text string) []GherkinScenario {
	var out []GherkinScenario
	var cur *GherkinScenario
	var section *[]string
	var pendingTags []string
	inExamples := false

	flush := func() {
		if cur != nil {
			out = append(out, *cur)
		}
		cur, section = nil, nil
		inExamples = false
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "@"):
			pendingTags = strings.Fields(line)
		case strings.HasPrefix(line, "Scenario Outline:"):
			flush()
			cur = &GherkinScenario{
				Title:     strings.TrimSpace(strings.TrimPrefix(line, "Scenario Outline:")),
				Tags:      pendingTags,
				IsOutline: true,
			}
			pendingTags = nil
		case strings.HasPrefix(line, "Scenario:"):
			flush()
			cur = &GherkinScenario{
				Title: strings.TrimSpace(strings.TrimPrefix(line, "Scenario:")),
				Tags:  pendingTags,
			}
			pendingTags = nil
		case cur == nil:
			continue
		case strings.HasPrefix(line, "Examples:"):
			inExamples = true
		case inExamples && strings.HasPrefix(line, "|"):
			cells := strings.Split(strings.Trim(line, "|"), "|")
			row := make([]string, 0, len(cells))
			for _, c := range cells {
				row = append(row, strings.TrimSpace(c))
			}
			cur.Examples = append(cur.Examples, row)
		case strings.HasPrefix(line, "Given "):
			cur.Given = append(cur.Given, strings.TrimPrefix(line, "Given "))
			section = &cur.Given
		case strings.HasPrefix(line, "When "):
			cur.When = append(cur.When, strings.TrimPrefix(line, "When "))
			section = &cur.When
		case strings.HasPrefix(line, "Then "):
			cur.Then = append(cur.Then, strings.TrimPrefix(line, "Then "))
			section = &cur.Then
		case strings.HasPrefix(line, "And ") && section != nil:
			*section = append(*section, strings.TrimPrefix(line, "And "))
		}
	}
	flush()
	return out
}
