package domain

import "time"

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunNoWork    RunStatus = "no_work"
	RunFailed    RunStatus = "failed"
)

// RunResult summarizes one pipeline run for notification and downstream
// consumers.
type RunResult struct {
	RunID           string        `json:"run_id"`
	ReportType      string        `json:"report_type"`
	Status          RunStatus     `json:"status"`
	WindowStart     time.Time     `json:"window_start"`
	WindowEnd       time.Time     `json:"window_end"`
	PagesFetched    int           `json:"pages_fetched"`
	RecordsLoaded   int           `json:"records_loaded"`
	MappingFailures int           `json:"mapping_failures"`
	ErrorSummary    string        `json:"error_summary,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
}

// Failed reports whether the run ended in an error state.
func (r *RunResult) Failed() bool {
	return r.Status == RunFailed
}
