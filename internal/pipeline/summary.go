package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Summary records what happened during one pipeline run. A run that
// finished with no errors succeeded; anything else is reported to the
// caller through the error list, never as a panic.
type Summary struct {
	// RunID correlates log lines belonging to the same run.
	RunID string

	StartedAt  time.Time
	FinishedAt time.Time

	Errors []string
}

func NewSummary() *Summary {
	return &Summary{
		RunID:  uuid.New().String(),
		Errors: make([]string, 0),
	}
}

func (s *Summary) Start() {
	s.StartedAt = time.Now().UTC()
}

func (s *Summary) Finish() {
	s.FinishedAt = time.Now().UTC()
}

func (s *Summary) Finished() bool {
	return !s.FinishedAt.IsZero()
}

func (s *Summary) RunTime() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return end.Sub(s.StartedAt)
}

func (s *Summary) AddError(format string, a ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, a...))
}

func (s *Summary) HasErrors() bool {
	return len(s.Errors) > 0
}

func (s *Summary) FirstError() string {
	if len(s.Errors) > 0 {
		return s.Errors[0]
	}
	return ""
}

func (s *Summary) AllErrors() string {
	return strings.Join(s.Errors, "\n")
}

func (s *Summary) Succeeded() bool {
	return s.Finished() && len(s.Errors) == 0
}
