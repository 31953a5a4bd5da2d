// Package syncing promotes approved staging rows to the actual tables.
package syncing

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/internal/repositories/actualanswer"
	"github.com/Ramsey-B/sage/internal/repositories/actualquestion"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/redis"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const lockTTL = 5 * time.Minute

// RunRepository is the run surface the engine needs
type RunRepository interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Run, error)
	SetLastSyncAt(ctx context.Context, tenantID string, id string, at time.Time) error
}

// QuestionRepository is the staging question surface the engine needs
type QuestionRepository interface {
	ListApprovedByRun(ctx context.Context, tenantID, runID string) ([]models.QuestionStaging, error)
}

// AnswerRepository is the staging answer surface the engine needs
type AnswerRepository interface {
	GetByQuestionID(ctx context.Context, tenantID string, questionID string) (*models.AnswerStaging, error)
}

// ActualQuestionRepository is the actual question surface the engine needs
type ActualQuestionRepository interface {
	UpsertFromStaging(ctx context.Context, tenantID string, staging models.QuestionStaging, at time.Time) (*actualquestion.UpsertResult, error)
}

// ActualAnswerRepository is the actual answer surface the engine needs
type ActualAnswerRepository interface {
	UpsertFromStaging(ctx context.Context, tenantID, questionID string, staging models.AnswerStaging, at time.Time) (*actualanswer.UpsertResult, error)
}

// TagRepository is the tag surface the engine needs
type TagRepository interface {
	ListByStagingQuestion(ctx context.Context, tenantID string, questionID string) ([]models.Tag, error)
	ReplaceActualQuestionLinks(ctx context.Context, questionID string, tagIDs []string) error
}

// Emitter publishes the run.synced event after commit
type Emitter interface {
	EmitRunSynced(ctx context.Context, tenantID string, result *models.SyncResult) error
}

// Projector mirrors synced questions into the graph store after commit
type Projector interface {
	ProjectRunSync(ctx context.Context, tenantID string, runID string, questions []models.ActualQuestionView) error
}

// TxBeginner opens or joins a context-carried transaction
type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Engine copies approved staging questions, their approved answers, and their
// full tag sets into the actual tables in one transaction. Upserts keyed by
// staging id make re-syncs idempotent, and nothing already promoted is ever
// retracted: revoking an approval stops future updates but leaves the actual
// row in place.
type Engine struct {
	logger             ectologger.Logger
	db                 TxBeginner
	runRepo            RunRepository
	questionRepo       QuestionRepository
	answerRepo         AnswerRepository
	actualQuestionRepo ActualQuestionRepository
	actualAnswerRepo   ActualAnswerRepository
	tagRepo            TagRepository
	emitter            Emitter
	projector          Projector
	locker             *redis.Locker // nil when Redis is disabled
}

// NewEngine creates a new sync engine
func NewEngine(
	logger ectologger.Logger,
	db TxBeginner,
	runRepo RunRepository,
	questionRepo QuestionRepository,
	answerRepo AnswerRepository,
	actualQuestionRepo ActualQuestionRepository,
	actualAnswerRepo ActualAnswerRepository,
	tagRepo TagRepository,
	emitter Emitter,
	projector Projector,
	locker *redis.Locker,
) *Engine {
	return &Engine{
		logger:             logger,
		db:                 db,
		runRepo:            runRepo,
		questionRepo:       questionRepo,
		answerRepo:         answerRepo,
		actualQuestionRepo: actualQuestionRepo,
		actualAnswerRepo:   actualAnswerRepo,
		tagRepo:            tagRepo,
		emitter:            emitter,
		projector:          projector,
		locker:             locker,
	}
}

// SyncToActual promotes the run's approved staging data to the actual tables.
// Syncing a run with nothing approved still succeeds and stamps last_sync_at.
func (e *Engine) SyncToActual(ctx context.Context, tenantID string, runID string) (*models.SyncResult, error) {
	ctx, span := tracing.StartSpan(ctx, "syncing.Engine.SyncToActual")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
	})

	if _, err := e.runRepo.Get(ctx, tenantID, runID); err != nil {
		return nil, err
	}

	unlock, err := e.lockRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	now := start.UTC()

	txCtx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	approved, err := e.questionRepo.ListApprovedByRun(txCtx, tenantID, runID)
	if err != nil {
		metrics.SyncsTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	var answersSynced int
	views := make([]models.ActualQuestionView, 0, len(approved))
	for _, staged := range approved {
		upserted, err := e.actualQuestionRepo.UpsertFromStaging(txCtx, tenantID, staged, now)
		if err != nil {
			metrics.SyncsTotal.WithLabelValues(tenantID, "error").Inc()
			return nil, err
		}
		actual := upserted.Question

		tags, err := e.tagRepo.ListByStagingQuestion(txCtx, tenantID, staged.ID)
		if err != nil {
			metrics.SyncsTotal.WithLabelValues(tenantID, "error").Inc()
			return nil, err
		}
		tagIDs := make([]string, 0, len(tags))
		for _, t := range tags {
			tagIDs = append(tagIDs, t.ID)
		}
		if err := e.tagRepo.ReplaceActualQuestionLinks(txCtx, actual.ID, tagIDs); err != nil {
			metrics.SyncsTotal.WithLabelValues(tenantID, "error").Inc()
			return nil, err
		}

		view := models.ActualQuestionView{ActualQuestion: *actual, Tags: tags}

		stagedAnswer, err := e.answerRepo.GetByQuestionID(txCtx, tenantID, staged.ID)
		if err != nil {
			metrics.SyncsTotal.WithLabelValues(tenantID, "error").Inc()
			return nil, err
		}
		if stagedAnswer != nil && stagedAnswer.Approval.IsApproved() {
			upsertedAnswer, err := e.actualAnswerRepo.UpsertFromStaging(txCtx, tenantID, actual.ID, *stagedAnswer, now)
			if err != nil {
				metrics.SyncsTotal.WithLabelValues(tenantID, "error").Inc()
				return nil, err
			}
			view.Answer = upsertedAnswer.Answer
			answersSynced++
		}

		views = append(views, view)
	}

	if err := e.runRepo.SetLastSyncAt(txCtx, tenantID, runID, now); err != nil {
		metrics.SyncsTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		metrics.SyncsTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit sync")
	}

	metrics.SyncsTotal.WithLabelValues(tenantID, "success").Inc()
	metrics.SyncDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
	metrics.SyncedRowsTotal.WithLabelValues(tenantID, "question").Add(float64(len(approved)))
	metrics.SyncedRowsTotal.WithLabelValues(tenantID, "answer").Add(float64(answersSynced))

	result := &models.SyncResult{
		RunID:           runID,
		QuestionsSynced: len(approved),
		AnswersSynced:   answersSynced,
		LastSyncAt:      now,
	}

	if e.emitter != nil {
		if err := e.emitter.EmitRunSynced(ctx, tenantID, result); err != nil {
			log.WithError(err).Warn("Failed to emit run.synced event")
		}
	}
	if e.projector != nil {
		if err := e.projector.ProjectRunSync(ctx, tenantID, runID, views); err != nil {
			log.WithError(err).Warn("Failed to project sync to graph")
		}
	}

	log.WithFields(map[string]any{
		"questions_synced": result.QuestionsSynced,
		"answers_synced":   result.AnswersSynced,
	}).Info("Synced run to actual tables")
	return result, nil
}

// lockRun acquires the run-scoped lock when Redis is enabled. The returned
// func releases it and is a no-op without Redis.
func (e *Engine) lockRun(ctx context.Context, runID string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}

	lock, err := e.locker.Acquire(ctx, runID, lockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "run is busy with another generation or sync")
		}
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to acquire run lock")
	}

	return func() {
		if err := lock.Release(ctx); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to release run lock")
		}
	}, nil
}
