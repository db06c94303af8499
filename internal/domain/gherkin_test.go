package domain

import (
	"strings"
	"testing"
)

func sampleScenario() GherkinScenario {
	return GherkinScenario{
		Title: "Successful login",
		Tags:  []string{"@smoke", "@auth"},
		Given: []string{"a registered user", "the login page is open"},
		When:  []string{"the user submits valid credentials"},
		Then:  []string{"the dashboard is shown", "a session cookie is set"},
	}
}

func TestScenarioRenderOrder(t *testing.T) {
	sc := sampleScenario()
	text := sc.ToGherkinText()

	lines := strings.Split(text, "\n")
	want := []string{
		"@smoke @auth",
		"Scenario: Successful login",
		"  Given a registered user",
		"  And the login page is open",
		"  When the user submits valid credentials",
		"  Then the dashboard is shown",
		"  And a session cookie is set",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), text)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestFeatureRenderWithBackgroundAndOutline(t *testing.T) {
	ac := AcceptanceCriteria{
		FeatureName: "Login",
		Background:  []string{"the service is running"},
		Scenarios: []GherkinScenario{
			{
				Title:     "Login attempts",
				IsOutline: true,
				Given:     []string{"a user <name>"},
				When:      []string{"they log in with <password>"},
				Then:      []string{"the result is <outcome>"},
				Examples: [][]string{
					{"name", "password", "outcome"},
					{"alice", "correct", "success"},
				},
			},
		},
	}
	text := ac.ToGherkinText()

	for _, want := range []string{
		"Feature: Login",
		"  Background:",
		"    Given the service is running",
		"  Scenario Outline: Login attempts",
		"    Examples:",
		"      | name | password | outcome |",
		"      | alice | correct | success |",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("rendered feature missing %q:\n%s", want, text)
		}
	}
}

func TestParseScenariosRoundTrip(t *testing.T) {
	ac := AcceptanceCriteria{
		FeatureName: "Checkout",
		Scenarios: []GherkinScenario{
			sampleScenario(),
			{
				Title: "Invalid card",
				Given: []string{"a cart with items"},
				When:  []string{"payment is made with an expired card"},
				Then:  []string{"the payment is rejected"},
			},
		},
	}

	parsed := ParseScenarios(ac.ToGherkinText())
	if len(parsed) != 2 {
		t.Fatalf("parsed %d scenarios, want 2", len(parsed))
	}
	if parsed[0].Title != "Successful login" {
		t.Fatalf("first title = %q", parsed[0].Title)
	}
	if len(parsed[0].Given) != 2 || parsed[0].Given[1] != "the login page is open" {
		t.Fatalf("And continuation lost: %v", parsed[0].Given)
	}
	if len(parsed[1].Then) != 1 || parsed[1].Then[0] != "the payment is rejected" {
		t.Fatalf("second scenario then = %v", parsed[1].Then)
	}
}

func TestParseScenariosOutlineExamples(t *testing.T) {
	text := `@data
Scenario Outline: Rate limits
  Given a client with plan <plan>
  When it sends <n> requests
  Then <allowed> are accepted
  Examples:
    | plan | n | allowed |
    | free | 100 | 10 |`

	parsed := ParseScenarios(text)
	if len(parsed) != 1 {
		t.Fatalf("parsed %d scenarios, want 1", len(parsed))
	}
	sc := parsed[0]
	if !sc.IsOutline {
		t.Fatal("outline flag not set")
	}
	if len(sc.Examples) != 2 || sc.Examples[1][0] != "free" {
		t.Fatalf("examples = %v", sc.Examples)
	}
	if len(sc.Tags) != 1 || sc.Tags[0] != "@data" {
		t.Fatalf("tags = %v", sc.Tags)
	}
}
