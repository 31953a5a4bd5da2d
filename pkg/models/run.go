package models

import (
	"time"
)

// Run is one end-to-end question generation session tied to a single summary.
// The summary is immutable once the run is created; the two nullable
// timestamps track staging churn and the last successful promotion to the
// actual tables.
type Run struct {
	ID                  string     `json:"id" db:"id"`
	TenantID            string     `json:"tenant_id" db:"tenant_id"`
	Summary             string     `json:"summary" db:"summary"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
	LastStagingChangeAt *time.Time `json:"last_staging_change_at,omitempty" db:"last_staging_change_at"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
}

// CreateRunRequest is the request for creating a run
type CreateRunRequest struct {
	Summary string `json:"summary" validate:"required"`
}

// RunListResponse is the response for listing runs
type RunListResponse struct {
	Items      []Run `json:"items"`
	TotalCount int   `json:"total_count"`
}

// SyncResult summarizes one promotion of approved staging rows to the actual
// tables.
type SyncResult struct {
	RunID           string    `json:"run_id"`
	QuestionsSynced int       `json:"questions_synced"`
	AnswersSynced   int       `json:"answers_synced"`
	LastSyncAt      time.Time `json:"last_sync_at"`
}
