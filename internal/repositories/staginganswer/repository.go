package staginganswer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Repository handles staging answer persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging answer repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB returns the underlying database handle for transaction control
func (r *Repository) DB() database.DB {
	return r.db
}

// Create inserts a pending staging answer for the given question
func (r *Repository) Create(ctx context.Context, tenantID, runID, questionID, answerText string) (*models.AnswerStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "staginganswer.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	answer := &models.AnswerStaging{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		RunID:      runID,
		QuestionID: questionID,
		AnswerText: answerText,
		Approval:   models.ApprovalPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("answer_staging")
	sb.Cols("id", "tenant_id", "run_id", "question_id", "answer_text", "is_approved", "created_at", "updated_at")
	sb.Values(answer.ID, answer.TenantID, answer.RunID, answer.QuestionID, answer.AnswerText, answer.Approval, answer.CreatedAt, answer.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "question_id": questionID}).Error("Failed to create staging answer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create staging answer")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": answer.ID, "question_id": questionID}).Info("Created staging answer")
	return answer, nil
}

// Get retrieves a staging answer by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.AnswerStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "staginganswer.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "question_id", "answer_text", "is_approved", "created_at", "updated_at")
	sb.From("answer_staging")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var answer models.AnswerStaging
	if err := r.db.GetContext(ctx, &answer, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "answer %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to get staging answer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staging answer")
	}

	return &answer, nil
}

// GetByQuestionID retrieves the staging answer for a question, or nil if the
// question has never been answered.
func (r *Repository) GetByQuestionID(ctx context.Context, tenantID string, questionID string) (*models.AnswerStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "staginganswer.Repository.GetByQuestionID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "question_id", "answer_text", "is_approved", "created_at", "updated_at")
	sb.From("answer_staging")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("question_id", questionID),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var answer models.AnswerStaging
	if err := r.db.GetContext(ctx, &answer, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "question_id": questionID}).Error("Failed to get staging answer by question")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staging answer")
	}

	return &answer, nil
}

// ListByRun retrieves all staging answers for a run in creation order
func (r *Repository) ListByRun(ctx context.Context, tenantID, runID string) ([]models.AnswerStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "staginganswer.Repository.ListByRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "question_id", "answer_text", "is_approved", "created_at", "updated_at")
	sb.From("answer_staging")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("run_id", runID),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var answers []models.AnswerStaging
	if err := r.db.SelectContext(ctx, &answers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID}).Error("Failed to list staging answers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staging answers")
	}
	return answers, nil
}

// SetApproval updates the approval state of a staging answer
func (r *Repository) SetApproval(ctx context.Context, tenantID string, id string, approval models.Approval, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "staginganswer.Repository.SetApproval")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("answer_staging")
	sb.Set(sb.Assign("is_approved", approval), sb.Assign("updated_at", at))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID, "approval": approval.String()}).Error("Failed to set answer approval")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update answer approval")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("answer %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "approval": approval.String()}).Info("Updated answer approval")
	return nil
}

// ResetApprovedByQuestionID forces an approved answer for the question back to
// pending. Used by the cascade when the parent question is rejected; answers
// that are already pending or rejected are left alone. Returns the number of
// rows touched.
func (r *Repository) ResetApprovedByQuestionID(ctx context.Context, tenantID string, questionID string, at time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "staginganswer.Repository.ResetApprovedByQuestionID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("answer_staging")
	sb.Set(sb.Assign("is_approved", models.ApprovalPending), sb.Assign("updated_at", at))
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("question_id", questionID),
		sb.Equal("is_approved", true),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "question_id": questionID}).Error("Failed to reset approved answer")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reset answer approval")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"question_id": questionID, "count": rows}).Info("Reset approved answer after question rejection")
	}
	return rows, nil
}
