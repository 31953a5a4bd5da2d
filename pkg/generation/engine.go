// Package generation orchestrates question and answer generation for a run.
package generation

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/redis"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// MaxQuestionsPerBatch caps a single generation request
const MaxQuestionsPerBatch = 25

// DefaultQuestionCount is used when the caller does not say how many
const DefaultQuestionCount = 5

const lockTTL = 5 * time.Minute

// Generator produces question and answer text from a run summary
type Generator interface {
	GenerateQuestions(ctx context.Context, summary string, count int) ([]string, error)
	GenerateAnswer(ctx context.Context, summary string, question string) (string, error)
}

// RunRepository is the run surface the engine needs
type RunRepository interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Run, error)
	TouchStagingChange(ctx context.Context, tenantID string, id string, at time.Time) error
}

// QuestionRepository is the staging question surface the engine needs
type QuestionRepository interface {
	CreateBatch(ctx context.Context, tenantID, runID string, questionTexts []string) ([]models.QuestionStaging, error)
	ListApprovedWithoutAnswer(ctx context.Context, tenantID, runID string) ([]models.QuestionStaging, error)
}

// AnswerRepository is the staging answer surface the engine needs
type AnswerRepository interface {
	Create(ctx context.Context, tenantID, runID, questionID, answerText string) (*models.AnswerStaging, error)
}

// Emitter publishes generation events after commit
type Emitter interface {
	EmitQuestionsGenerated(ctx context.Context, tenantID, runID string, questions []models.QuestionStaging) error
	EmitAnswersGenerated(ctx context.Context, tenantID, runID string, answers []models.AnswerStaging) error
}

// TxBeginner opens or joins a context-carried transaction
type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Engine coordinates generator calls and staging persistence. A run-scoped
// lock keeps concurrent generation off the same run; generator calls happen
// outside the transaction so a slow provider never holds a database
// transaction open.
type Engine struct {
	logger       ectologger.Logger
	db           TxBeginner
	generator    Generator
	runRepo      RunRepository
	questionRepo QuestionRepository
	answerRepo   AnswerRepository
	emitter      Emitter
	locker       *redis.Locker // nil when Redis is disabled
}

// NewEngine creates a new generation engine
func NewEngine(
	logger ectologger.Logger,
	db TxBeginner,
	generator Generator,
	runRepo RunRepository,
	questionRepo QuestionRepository,
	answerRepo AnswerRepository,
	emitter Emitter,
	locker *redis.Locker,
) *Engine {
	return &Engine{
		logger:       logger,
		db:           db,
		generator:    generator,
		runRepo:      runRepo,
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
		emitter:      emitter,
		locker:       locker,
	}
}

// GenerateQuestions generates count questions from the run's summary and
// stages them as pending.
func (e *Engine) GenerateQuestions(ctx context.Context, tenantID string, runID string, count int) ([]models.QuestionStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "generation.Engine.GenerateQuestions")
	defer span.End()

	if count <= 0 {
		count = DefaultQuestionCount
	}
	if count > MaxQuestionsPerBatch {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "count must be at most %d", MaxQuestionsPerBatch)
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
		"count":     count,
	})

	r, err := e.runRepo.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	texts, err := e.generator.GenerateQuestions(ctx, r.Summary, count)
	metrics.GenerationDuration.WithLabelValues(tenantID, "question").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationCallsTotal.WithLabelValues(tenantID, "question", "error").Inc()
		log.WithError(err).Error("Question generation failed")
		return nil, err
	}
	metrics.GenerationCallsTotal.WithLabelValues(tenantID, "question", "success").Inc()

	now := time.Now().UTC()

	txCtx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	questions, err := e.questionRepo.CreateBatch(txCtx, tenantID, runID, texts)
	if err != nil {
		return nil, err
	}

	if err := e.runRepo.TouchStagingChange(txCtx, tenantID, runID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit staged questions")
	}

	metrics.QuestionsStagedTotal.WithLabelValues(tenantID).Add(float64(len(questions)))

	if e.emitter != nil {
		if err := e.emitter.EmitQuestionsGenerated(ctx, tenantID, runID, questions); err != nil {
			log.WithError(err).Warn("Failed to emit question.generated event")
		}
	}

	log.WithFields(map[string]any{"staged": len(questions)}).Info("Staged generated questions")
	return questions, nil
}

// GenerateAnswers generates one answer for every approved question that has
// never had an answer staged. A question keeps its single answer row for
// good: once answered, it is never eligible again, whatever the answer's
// review outcome. When nothing is eligible the result is simply empty.
func (e *Engine) GenerateAnswers(ctx context.Context, tenantID string, runID string) ([]models.AnswerStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "generation.Engine.GenerateAnswers")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
	})

	r, err := e.runRepo.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	eligible, err := e.questionRepo.ListApprovedWithoutAnswer(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		log.Info("No questions eligible for answer generation")
		return []models.AnswerStaging{}, nil
	}

	// Generate everything up front so a provider failure stages nothing.
	texts := make([]string, 0, len(eligible))
	for _, q := range eligible {
		start := time.Now()
		text, err := e.generator.GenerateAnswer(ctx, r.Summary, q.QuestionText)
		metrics.GenerationDuration.WithLabelValues(tenantID, "answer").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.GenerationCallsTotal.WithLabelValues(tenantID, "answer", "error").Inc()
			log.WithError(err).WithFields(map[string]any{"question_id": q.ID}).Error("Answer generation failed")
			return nil, err
		}
		metrics.GenerationCallsTotal.WithLabelValues(tenantID, "answer", "success").Inc()
		texts = append(texts, text)
	}

	now := time.Now().UTC()

	txCtx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	answers := make([]models.AnswerStaging, 0, len(eligible))
	for i, q := range eligible {
		answer, err := e.answerRepo.Create(txCtx, tenantID, runID, q.ID, texts[i])
		if err != nil {
			return nil, err
		}
		answers = append(answers, *answer)
	}

	if err := e.runRepo.TouchStagingChange(txCtx, tenantID, runID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit staged answers")
	}

	metrics.AnswersStagedTotal.WithLabelValues(tenantID).Add(float64(len(answers)))

	if e.emitter != nil {
		if err := e.emitter.EmitAnswersGenerated(ctx, tenantID, runID, answers); err != nil {
			log.WithError(err).Warn("Failed to emit answer.generated event")
		}
	}

	log.WithFields(map[string]any{"staged": len(answers)}).Info("Staged generated answers")
	return answers, nil
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
