package models

import "time"

// Script is a user-owned transformation source. The core treats it as
// immutable during a job's lifetime: the processor snapshots CodeText at
// dispatch and never rereads the row mid-run.
type Script struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CodeText    string    `json:"code_text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
