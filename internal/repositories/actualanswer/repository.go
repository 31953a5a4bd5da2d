package actualanswer

import (
	"context"
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

// Repository handles actual answer persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new actual answer repository
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

// UpsertResult carries the written row plus whether the upsert inserted it
type UpsertResult struct {
	Answer *models.ActualAnswer
	IsNew  bool
}

// UpsertFromStaging creates or refreshes the actual answer for an actual
// question. The unique index on question_id keeps one answer per question, so
// re-syncing an approved answer updates the existing row in place.
func (r *Repository) UpsertFromStaging(ctx context.Context, tenantID, questionID string, staging models.AnswerStaging, at time.Time) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "actualanswer.Repository.UpsertFromStaging")
	defer span.End()

	query := `
		INSERT INTO answers (id, tenant_id, run_id, question_id, staging_id, answer_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (question_id)
		DO UPDATE SET
			staging_id = EXCLUDED.staging_id,
			answer_text = EXCLUDED.answer_text,
			updated_at = EXCLUDED.updated_at
		RETURNING id, tenant_id, run_id, question_id, staging_id, answer_text, created_at, updated_at,
			(xmax = 0) AS inserted
	`

	var result struct {
		models.ActualAnswer
		Inserted bool `db:"inserted"`
	}

	err := r.db.GetContext(ctx, &result, query,
		uuid.New().String(), tenantID, staging.RunID, questionID, staging.ID, staging.AnswerText, at, at,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "question_id": questionID, "staging_id": staging.ID}).Error("Failed to upsert actual answer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert answer")
	}

	return &UpsertResult{Answer: &result.ActualAnswer, IsNew: result.Inserted}, nil
}

// GetByQuestionID retrieves the answer for an actual question, or nil if the
// question has no synced answer yet.
func (r *Repository) GetByQuestionID(ctx context.Context, tenantID string, questionID string) (*models.ActualAnswer, error) {
	ctx, span := tracing.StartSpan(ctx, "actualanswer.Repository.GetByQuestionID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "question_id", "staging_id", "answer_text", "created_at", "updated_at")
	sb.From("answers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("question_id", questionID),
	)

	query, args := sb.Build()
	var answer models.ActualAnswer
	if err := r.db.GetContext(ctx, &answer, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "question_id": questionID}).Error("Failed to get actual answer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get answer")
	}

	return &answer, nil
}

// ListByRun retrieves the actual answers for a run in creation order
func (r *Repository) ListByRun(ctx context.Context, tenantID, runID string) ([]models.ActualAnswer, error) {
	ctx, span := tracing.StartSpan(ctx, "actualanswer.Repository.ListByRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "question_id", "staging_id", "answer_text", "created_at", "updated_at")
	sb.From("answers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("run_id", runID),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var answers []models.ActualAnswer
	if err := r.db.SelectContext(ctx, &answers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID}).Error("Failed to list actual answers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list answers")
	}
	return answers, nil
}
