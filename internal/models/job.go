// Package models holds the shared data types for transformd: jobs, scripts,
// tables, and sandbox execution results.
package models

import "time"

// Job is a durable queue entry describing one transformation run.
type Job struct {
	ID                 string    `json:"id"`
	SeqID               int64     `json:"seq_id"`
	UserID              string    `json:"user_id"`
	ScriptID            string    `json:"script_id,omitempty"`
	SourceTable         string    `json:"source_table"`
	DestinationTable    string    `json:"destination_table"`
	Status              string    `json:"status"`
	Logs                string    `json:"logs"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	RowsProcessed       int64     `json:"rows_processed"`
	CreatedAt           time.Time `json:"created_at"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
}

// Job status constants — the directed graph described in the job lifecycle:
// pending -> running -> {completed|failed|timeout|killed}, plus the two
// cancellation shortcuts pending->killed and running->killed.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusTimeout   = "timeout"
	JobStatusKilled    = "killed"
)

// IsTerminal reports whether status is one of the four terminal states.
func IsTerminal(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimeout, JobStatusKilled:
		return true
	default:
		return false
	}
}
