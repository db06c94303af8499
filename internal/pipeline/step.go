package pipeline

import "time"

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step tracks one pipeline stage. Completed, failed, and skipped are
// terminal; transitions out of a terminal status are ignored so late
// goroutines cannot rewrite history.
type Step struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func NewStep(name string) *Step {
	return &Step{Name: name, Status: StepPending}
}

func (s *Step) terminal() bool {
	return s.Status == StepCompleted || s.Status == StepFailed || s.Status == StepSkipped
}

func (s *Step) Start() {
	if s.terminal() || s.Status == StepRunning {
		return
	}
	now := time.Now().UTC()
	s.Status = StepRunning
	s.StartedAt = &now
}

func (s *Step) Complete(detail string) {
	if s.terminal() {
		return
	}
	now := time.Now().UTC()
	s.Status = StepCompleted
	s.Detail = detail
	s.FinishedAt = &now
}

func (s *Step) Fail(err error) {
	if s.terminal() {
		return
	}
	now := time.Now().UTC()
	s.Status = StepFailed
	if err != nil {
		s.Error = err.Error()
	}
	s.FinishedAt = &now
}

func (s *Step) Skip(reason string) {
	if s.terminal() {
		return
	}
	now := time.Now().UTC()
	s.Status = StepSkipped
	s.Detail = reason
	s.FinishedAt = &now
}

// Duration is zero until the step has both started and finished.
func (s *Step) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}
