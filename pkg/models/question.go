package models

import (
	"time"
)

// QuestionStaging is a generated question awaiting review. Rows are only ever
// created by the generation orchestrator and only ever mutated by approval
// updates.
type QuestionStaging struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	RunID        string    `json:"run_id" db:"run_id"`
	QuestionText string    `json:"question_text" db:"question_text"`
	Approval     Approval  `json:"approval" db:"is_approved"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ActualQuestion is the durable copy of an approved staging question. It is
// created and updated exclusively by the sync engine; StagingID keys the
// upsert so re-syncing the same staging row updates rather than duplicates.
type ActualQuestion struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	RunID        string    `json:"run_id" db:"run_id"`
	StagingID    *string   `json:"staging_id,omitempty" db:"staging_id"`
	QuestionText string    `json:"question_text" db:"question_text"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// UpdateApprovalRequest is the request for approving or rejecting a staged item
type UpdateApprovalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// GenerateQuestionsRequest is the request for generating staging questions
type GenerateQuestionsRequest struct {
	Count int `json:"count" validate:"required,gt=0,lte=25"`
}

// QuestionStagingListResponse is the response for listing staging questions
type QuestionStagingListResponse struct {
	Items      []QuestionStaging `json:"items"`
	TotalCount int               `json:"total_count"`
}

// ActualQuestionView is an actual question with its answer and tags embedded
type ActualQuestionView struct {
	ActualQuestion
	Tags   []Tag         `json:"tags"`
	Answer *ActualAnswer `json:"answer,omitempty"`
}

// ActualQuestionListResponse is the response for listing actual questions
type ActualQuestionListResponse struct {
	Items      []ActualQuestionView `json:"items"`
	TotalCount int                  `json:"total_count"`
}
