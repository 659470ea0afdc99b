package model

import "time"

// ComputeRun is the audit record for one compute engine invocation. It is
// written after the run's transaction commits and is never read back by the
// engine itself.
type ComputeRun struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageResult `json:"stages"`
	Lines      int           `json:"lines"`
	Projects   int           `json:"projects"`
	Triggers   int           `json:"triggers"`
}

// StageResult records the outcome of a single engine stage.
type StageResult struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
}
