package pipeline

import (
	"errors"
	"testing"
	"time"
)

func TestStepLifecycle(t *testing.T) {
	s := NewStep("fetch_story")
	if s.Status != StepPending {
		t.Fatalf("new step status = %s", s.Status)
	}
	s.Start()
	if s.Status != StepRunning || s.StartedAt == nil {
		t.Fatalf("after Start: status=%s started=%v", s.Status, s.StartedAt)
	}
	s.Complete("ok")
	if s.Status != StepCompleted || s.FinishedAt == nil || s.Detail != "ok" {
		t.Fatalf("after Complete: %+v", s)
	}
}

func TestStepTerminalTransitionsIgnored(t *testing.T) {
	s := NewStep("generate_ac")
	s.Start()
	s.Fail(errors.New("boom"))

	s.Complete("late completion")
	if s.Status != StepFailed {
		t.Fatalf("terminal step rewritten to %s", s.Status)
	}
	s.Skip("late skip")
	if s.Status != StepFailed || s.Error != "boom" {
		t.Fatalf("terminal step mutated: %+v", s)
	}
	s.Start()
	if s.Status != StepFailed {
		t.Fatalf("terminal step restarted: %s", s.Status)
	}
}

func TestStepSkipFromPending(t *testing.T) {
	s := NewStep("gitops_push")
	s.Skip("git push disabled")
	if s.Status != StepSkipped || s.Detail != "git push disabled" {
		t.Fatalf("skip: %+v", s)
	}
	if s.StartedAt != nil {
		t.Fatal("skipped step should not have a start time")
	}
}

func TestStepDuration(t *testing.T) {
	s := NewStep("x")
	if s.Duration() != 0 {
		t.Fatal("pending step has nonzero duration")
	}
	start := time.Now().UTC()
	end := start.Add(250 * time.Millisecond)
	s.Status = StepCompleted
	s.StartedAt = &start
	s.FinishedAt = &end
	if s.Duration() != 250*time.Millisecond {
		t.Fatalf("duration = %v", s.Duration())
	}
}
