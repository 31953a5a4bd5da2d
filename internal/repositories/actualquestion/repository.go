package actualquestion

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

// Repository handles actual question persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new actual question repository
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
	Question *models.ActualQuestion
	IsNew    bool
}

// UpsertFromStaging creates or refreshes the actual question for a staging
// row. The unique index on staging_id keys the conflict, so re-syncing the
// same staging question updates the existing row in place.
func (r *Repository) UpsertFromStaging(ctx context.Context, tenantID string, staging models.QuestionStaging, at time.Time) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "actualquestion.Repository.UpsertFromStaging")
	defer span.End()

	query := `
		INSERT INTO questions (id, tenant_id, run_id, staging_id, question_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (staging_id)
		DO UPDATE SET
			question_text = EXCLUDED.question_text,
			updated_at = EXCLUDED.updated_at
		RETURNING id, tenant_id, run_id, staging_id, question_text, created_at, updated_at,
			(xmax = 0) AS inserted
	`

	var result struct {
		models.ActualQuestion
		Inserted bool `db:"inserted"`
	}

	err := r.db.GetContext(ctx, &result, query,
		uuid.New().String(), tenantID, staging.RunID, staging.ID, staging.QuestionText, at, at,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "staging_id": staging.ID}).Error("Failed to upsert actual question")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert question")
	}

	return &UpsertResult{Question: &result.ActualQuestion, IsNew: result.Inserted}, nil
}

// Get retrieves an actual question by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.ActualQuestion, error) {
	ctx, span := tracing.StartSpan(ctx, "actualquestion.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "staging_id", "question_text", "created_at", "updated_at")
	sb.From("questions")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var question models.ActualQuestion
	if err := r.db.GetContext(ctx, &question, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "question %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to get actual question")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get question")
	}

	return &question, nil
}

// GetByStagingID retrieves the actual question synced from a staging row, or
// nil if that staging row has never been synced.
func (r *Repository) GetByStagingID(ctx context.Context, tenantID string, stagingID string) (*models.ActualQuestion, error) {
	ctx, span := tracing.StartSpan(ctx, "actualquestion.Repository.GetByStagingID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "staging_id", "question_text", "created_at", "updated_at")
	sb.From("questions")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("staging_id", stagingID),
	)

	query, args := sb.Build()
	var question models.ActualQuestion
	if err := r.db.GetContext(ctx, &question, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "staging_id": stagingID}).Error("Failed to get actual question by staging id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get question")
	}

	return &question, nil
}

// ListByRun retrieves the actual questions for a run in creation order
func (r *Repository) ListByRun(ctx context.Context, tenantID, runID string) ([]models.ActualQuestion, error) {
	ctx, span := tracing.StartSpan(ctx, "actualquestion.Repository.ListByRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "staging_id", "question_text", "created_at", "updated_at")
	sb.From("questions")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("run_id", runID),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var questions []models.ActualQuestion
	if err := r.db.SelectContext(ctx, &questions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID}).Error("Failed to list actual questions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list questions")
	}
	return questions, nil
}

// List retrieves all actual questions for a tenant in creation order
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.ActualQuestion, error) {
	ctx, span := tracing.StartSpan(ctx, "actualquestion.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "run_id", "staging_id", "question_text", "created_at", "updated_at")
	sb.From("questions")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var questions []models.ActualQuestion
	if err := r.db.SelectContext(ctx, &questions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list actual questions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list questions")
	}
	return questions, nil
}
