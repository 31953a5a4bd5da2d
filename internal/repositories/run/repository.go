package run

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

// Repository handles run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new run repository
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

// Create inserts a new run with the given summary
func (r *Repository) Create(ctx context.Context, tenantID string, summary string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	run := &models.Run{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Summary:   summary,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("runs")
	sb.Cols("id", "tenant_id", "summary", "created_at", "updated_at")
	sb.Values(run.ID, run.TenantID, run.Summary, run.CreatedAt, run.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to create run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": run.ID}).Info("Created run")
	return run, nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "summary", "created_at", "updated_at", "last_staging_change_at", "last_sync_at")
	sb.From("runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var run models.Run
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "run %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to get run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get run")
	}

	return &run, nil
}

// List retrieves all runs for the tenant, newest first
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "summary", "created_at", "updated_at", "last_staging_change_at", "last_sync_at")
	sb.From("runs")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var runs []models.Run
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}
	return runs, nil
}

// TouchStagingChange stamps last_staging_change_at on the run. Every staging
// mutation calls this, even when the stored value did not change.
func (r *Repository) TouchStagingChange(ctx context.Context, tenantID string, id string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.TouchStagingChange")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("runs")
	sb.Set(sb.Assign("last_staging_change_at", at), sb.Assign("updated_at", at))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to stamp staging change on run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("run %s not found", id))
	}
	return nil
}

// SetLastSyncAt stamps last_sync_at on the run after a successful sync
func (r *Repository) SetLastSyncAt(ctx context.Context, tenantID string, id string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.SetLastSyncAt")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("runs")
	sb.Set(sb.Assign("last_sync_at", at), sb.Assign("updated_at", at))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to stamp sync time on run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("run %s not found", id))
	}
	return nil
}
