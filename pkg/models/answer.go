package models

import (
	"time"
)

// AnswerStaging is a generated answer awaiting review. At most one row exists
// per staging question; the unique index on question_id backs that invariant.
type AnswerStaging struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	RunID      string    `json:"run_id" db:"run_id"`
	QuestionID string    `json:"question_id" db:"question_id"`
	AnswerText string    `json:"answer_text" db:"answer_text"`
	Approval   Approval  `json:"approval" db:"is_approved"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// ActualAnswer is the durable copy of an approved staging answer, keyed one to
// one against its actual question.
type ActualAnswer struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	RunID      string    `json:"run_id" db:"run_id"`
	QuestionID string    `json:"question_id" db:"question_id"`
	StagingID  *string   `json:"staging_id,omitempty" db:"staging_id"`
	AnswerText string    `json:"answer_text" db:"answer_text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// AnswerStagingListResponse is the response for listing staging answers
type AnswerStagingListResponse struct {
	Items      []AnswerStaging `json:"items"`
	TotalCount int             `json:"total_count"`
}
