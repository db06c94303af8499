package domain

import "testing"

func TestTestSuiteRecount(t *testing.T) {
	suite := NewTestSuite("PROJ-1", "suite", []TestScenario{
		{Type: ScenarioPositive},
		{Type: ScenarioPositive},
		{Type: ScenarioNegative},
		{Type: ScenarioEdgeCase},
		{Type: ScenarioSecurity},
	}, "gemini")

	if suite.TotalScenarios != 5 {
		t.Fatalf("total = %d, want 5", suite.TotalScenarios)
	}
	if suite.PositiveCount != 2 || suite.NegativeCount != 1 || suite.EdgeCaseCount != 1 {
		t.Fatalf("counts = %d/%d/%d", suite.PositiveCount, suite.NegativeCount, suite.EdgeCaseCount)
	}

	suite.Scenarios = suite.Scenarios[:2]
	suite.Recount()
	if suite.TotalScenarios != 2 || suite.NegativeCount != 0 {
		t.Fatalf("recount after trim: total=%d negative=%d", suite.TotalScenarios, suite.NegativeCount)
	}
}

func TestHasValidCode(t *testing.T) {
	sc := TestScenario{}
	if sc.HasValidCode() {
		t.Fatal("empty code reported valid")
	}
	sc.PlaywrightCode = CodeErrorMarker + " Code generation failed: boom"
	if sc.HasValidCode() {
		t.Fatal("error placeholder reported valid")
	}
	sc.PlaywrightCode = "import { test } from '@playwright/test';"
	if !sc.HasValidCode() {
		t.Fatal("real code reported invalid")
	}
}
