package pipeline

import (
	"errors"
	"time"

	"solarverify/internal/artifacts"
	"solarverify/internal/services"
)

// Failure describes one sample that did not complete.
type Failure struct {
	SampleID string `json:"sample_id"`
	Row      int    `json:"row"`
	Stage    string `json:"stage"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID       string        `json:"run_id"`
	OutputRoot  string        `json:"output_root"`
	MetricsPath string        `json:"metrics_path"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`

	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Certified int `json:"certified"`

	// FailuresByStage counts failed samples per stage.
	FailuresByStage map[string]int `json:"failures_by_stage"`
	Failures        []Failure      `json:"failures,omitempty"`
}

func newSummary(layout artifacts.Layout) *Summary {
	return &Summary{
		OutputRoot:      layout.Root,
		MetricsPath:     layout.MetricsPath(),
		FailuresByStage: map[string]int{},
	}
}

func (s *Summary) add(out *sampleOutcome, certified bool) {
	s.Total++
	switch {
	case out.err == nil:
		s.Processed++
		if certified {
			s.Certified++
		}
	case errors.Is(out.err, errSkipped):
		s.Skipped++
	default:
		s.Failed++
		s.FailuresByStage[out.stage]++
		s.Failures = append(s.Failures, Failure{
			SampleID: out.sample.ID,
			Row:      out.sample.Row,
			Stage:    out.stage,
			Kind:     services.FailureKind(out.err),
			Message:  out.err.Error(),
		})
	}
}
