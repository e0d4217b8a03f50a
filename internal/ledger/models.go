package ledger

import "time"

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Outcome is the terminal state of one sample.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped marks samples never scheduled because the run was interrupted.
	OutcomeSkipped Outcome = "skipped"
)

// Run is one pipeline invocation.
type Run struct {
	ID           string
	Status       RunStatus
	InputPath    string
	OutputRoot   string
	Layout       string
	AreaMode     string
	Workers      int
	Total        int
	Processed    int
	Failed       int
	Certified    int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns the run's wall time, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Sample is the recorded outcome of one input row.
type Sample struct {
	RunID        string
	Seq          int
	SampleID     string
	Lat          float64
	Lon          float64
	Outcome      Outcome
	FailureStage string
	FailureKind  string
	ErrorMessage string
	PanelCount   int
	TotalArea    float64
	QCFlag       string
	Health       string
	Certified    bool
	RecordedAt   time.Time
}

// Totals are the final counters written when a run finishes.
type Totals struct {
	Total     int
	Processed int
	Failed    int
	Certified int
}
