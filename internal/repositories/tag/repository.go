package tag

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

// Repository handles tags and their links to staging and actual questions
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new tag repository
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

// GetOrCreateByName returns the tenant's tag with the given name, creating it
// on first use. The unique index on (tenant_id, name) makes this race-safe;
// the no-op DO UPDATE lets RETURNING surface the existing row.
func (r *Repository) GetOrCreateByName(ctx context.Context, tenantID string, name string) (*models.Tag, error) {
	ctx, span := tracing.StartSpan(ctx, "tag.Repository.GetOrCreateByName")
	defer span.End()

	query := `
		INSERT INTO tags (id, tenant_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, name)
		DO UPDATE SET name = EXCLUDED.name
		RETURNING id, tenant_id, name, created_at
	`

	var tag models.Tag
	err := r.db.GetContext(ctx, &tag, query, uuid.New().String(), tenantID, name, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "name": name}).Error("Failed to get or create tag")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get or create tag")
	}

	return &tag, nil
}

// List retrieves all of the tenant's tags ordered by name
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.Tag, error) {
	ctx, span := tracing.StartSpan(ctx, "tag.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name", "created_at")
	sb.From("tags")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("name")

	query, args := sb.Build()
	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list tags")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tags")
	}
	return tags, nil
}

// ListByStagingQuestion retrieves the tags linked to a staging question,
// ordered by name.
func (r *Repository) ListByStagingQuestion(ctx context.Context, tenantID string, questionID string) ([]models.Tag, error) {
	ctx, span := tracing.StartSpan(ctx, "tag.Repository.ListByStagingQuestion")
	defer span.End()

	query := `
		SELECT t.id, t.tenant_id, t.name, t.created_at
		FROM tags t
		JOIN question_tags qt ON qt.tag_id = t.id
		WHERE t.tenant_id = $1 AND qt.question_id = $2
		ORDER BY t.name
	`

	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, query, tenantID, questionID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "question_id": questionID}).Error("Failed to list staging question tags")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list question tags")
	}
	return tags, nil
}

// ListByActualQuestion retrieves the tags linked to an actual question,
// ordered by name.
func (r *Repository) ListByActualQuestion(ctx context.Context, tenantID string, questionID string) ([]models.Tag, error) {
	ctx, span := tracing.StartSpan(ctx, "tag.Repository.ListByActualQuestion")
	defer span.End()

	query := `
		SELECT t.id, t.tenant_id, t.name, t.created_at
		FROM tags t
		JOIN actual_question_tags qt ON qt.tag_id = t.id
		WHERE t.tenant_id = $1 AND qt.question_id = $2
		ORDER BY t.name
	`

	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, query, tenantID, questionID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "question_id": questionID}).Error("Failed to list actual question tags")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list question tags")
	}
	return tags, nil
}

// LinkStagingQuestion attaches a tag to a staging question. Relinking an
// already-linked tag is a no-op.
func (r *Repository) LinkStagingQuestion(ctx context.Context, questionID string, tagID string) error {
	ctx, span := tracing.StartSpan(ctx, "tag.Repository.LinkStagingQuestion")
	defer span.End()

	query := `
		INSERT INTO question_tags (question_id, tag_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (question_id, tag_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, questionID, tagID, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"question_id": questionID, "tag_id": tagID}).Error("Failed to link tag")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to link tag")
	}
	return nil
}

// UnlinkStagingQuestion detaches a tag from a staging question
func (r *Repository) UnlinkStagingQuestion(ctx context.Context, questionID string, tagID string) error {
	ctx, span := tracing.StartSpan(ctx, "tag.Repository.UnlinkStagingQuestion")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("question_tags")
	sb.Where(
		sb.Equal("question_id", questionID),
		sb.Equal("tag_id", tagID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"question_id": questionID, "tag_id": tagID}).Error("Failed to unlink tag")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to unlink tag")
	}
	return nil
}

// ReplaceActualQuestionLinks overwrites the actual question's tag links with
// the given tag IDs. The sync engine calls this inside its transaction so the
// copied set always mirrors staging exactly.
func (r *Repository) ReplaceActualQuestionLinks(ctx context.Context, questionID string, tagIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "tag.Repository.ReplaceActualQuestionLinks")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("actual_question_tags")
	db.Where(db.Equal("question_id", questionID))

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"question_id": questionID}).Error("Failed to clear actual question tags")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace question tags")
	}

	if len(tagIDs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("actual_question_tags")
	ib.Cols("question_id", "tag_id", "created_at")
	for _, tagID := range tagIDs {
		ib.Values(questionID, tagID, now)
	}

	query, args = ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"question_id": questionID, "count": len(tagIDs)}).Error("Failed to write actual question tags")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace question tags")
	}
	return nil
}
