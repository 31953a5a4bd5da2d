package stagingquestion

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

// Repository handles staging question persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging question repository
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

// CreateBatch inserts the generated question texts as pending staging rows and
// returns them in generation order.
func (r *Repository) CreateBatch(ctx context.Context, tenantID, runID string, questionTexts []string) ([]models.QuestionStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingquestion.Repository.CreateBatch")
	defer span.End()

	if len(questionTexts) == 0 {
		return []models.QuestionStaging{}, nil
	}

	now := time.Now().UTC()
	questions := make([]models.QuestionStaging, 0, len(questionTexts))

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("question_staging")
	sb.Cols("id", "tenant_id", "run_id", "question_text", "is_approved", "created_at", "updated_at")
	for _, text := range questionTexts {
		q := models.QuestionStaging{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			RunID:        runID,
			QuestionText: text,
			Approval:     models.ApprovalPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		sb.Values(q.ID, q.TenantID, q.RunID, q.QuestionText, q.Approval, q.CreatedAt, q.UpdatedAt)
		questions = append(questions, q)
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID, "count": len(questionTexts)}).Error("Failed to create staging questions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create staging questions")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"run_id": runID, "count": len(questions)}).Info("Created staging questions")
	return questions, nil
}

// Get retrieves a staging question by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.QuestionStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingquestion.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "question_text", "is_approved", "created_at", "updated_at")
	sb.From("question_staging")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var question models.QuestionStaging
	if err := r.db.GetContext(ctx, &question, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "question %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to get staging question")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staging question")
	}

	return &question, nil
}

// ListByRun retrieves all staging questions for a run in creation order
func (r *Repository) ListByRun(ctx context.Context, tenantID, runID string) ([]models.QuestionStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingquestion.Repository.ListByRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "question_text", "is_approved", "created_at", "updated_at")
	sb.From("question_staging")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("run_id", runID),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var questions []models.QuestionStaging
	if err := r.db.SelectContext(ctx, &questions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID}).Error("Failed to list staging questions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staging questions")
	}
	return questions, nil
}

// ListApprovedByRun retrieves the approved staging questions for a run
func (r *Repository) ListApprovedByRun(ctx context.Context, tenantID, runID string) ([]models.QuestionStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingquestion.Repository.ListApprovedByRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "question_text", "is_approved", "created_at", "updated_at")
	sb.From("question_staging")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("run_id", runID),
		sb.Equal("is_approved", true),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var questions []models.QuestionStaging
	if err := r.db.SelectContext(ctx, &questions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID}).Error("Failed to list approved staging questions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approved staging questions")
	}
	return questions, nil
}

// ListApprovedWithoutAnswer retrieves approved staging questions that have no
// answer row of any status. A question that was already answered once, even if
// that answer was rejected, is excluded.
func (r *Repository) ListApprovedWithoutAnswer(ctx context.Context, tenantID, runID string) ([]models.QuestionStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingquestion.Repository.ListApprovedWithoutAnswer")
	defer span.End()

	query := `
		SELECT q.id, q.tenant_id, q.run_id, q.question_text, q.is_approved, q.created_at, q.updated_at
		FROM question_staging q
		LEFT JOIN answer_staging a ON a.question_id = q.id
		WHERE q.tenant_id = $1
		  AND q.run_id = $2
		  AND q.is_approved = TRUE
		  AND a.id IS NULL
		ORDER BY q.created_at, q.id
	`

	var questions []models.QuestionStaging
	if err := r.db.SelectContext(ctx, &questions, query, tenantID, runID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID}).Error("Failed to list unanswered approved questions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unanswered approved questions")
	}
	return questions, nil
}

// SetApproval updates the approval state of a staging question
func (r *Repository) SetApproval(ctx context.Context, tenantID string, id string, approval models.Approval, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "stagingquestion.Repository.SetApproval")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("question_staging")
	sb.Set(sb.Assign("is_approved", approval), sb.Assign("updated_at", at))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID, "approval": approval.String()}).Error("Failed to set question approval")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update question approval")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("question %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "approval": approval.String()}).Info("Updated question approval")
	return nil
}
