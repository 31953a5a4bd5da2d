// Package approval implements the review state machine for staged questions
// and answers.
package approval

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// QuestionRepository is the staging question surface the engine needs
type QuestionRepository interface {
	Get(ctx context.Context, tenantID string, id string) (*models.QuestionStaging, error)
	SetApproval(ctx context.Context, tenantID string, id string, approval models.Approval, at time.Time) error
}

// AnswerRepository is the staging answer surface the engine needs
type AnswerRepository interface {
	Get(ctx context.Context, tenantID string, id string) (*models.AnswerStaging, error)
	SetApproval(ctx context.Context, tenantID string, id string, approval models.Approval, at time.Time) error
	ResetApprovedByQuestionID(ctx context.Context, tenantID string, questionID string, at time.Time) (int64, error)
}

// RunRepository is the run surface the engine needs
type RunRepository interface {
	TouchStagingChange(ctx context.Context, tenantID string, id string, at time.Time) error
}

// Emitter publishes approval events after commit
type Emitter interface {
	EmitApprovalUpdated(ctx context.Context, tenantID, runID, kind, entityID string, approval models.Approval) error
}

// TxBeginner opens or joins a context-carried transaction
type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Engine applies approval decisions. A question rejection cascades to its
// approved answer in the same transaction, and every decision marks the run
// as changed since the last sync.
type Engine struct {
	logger       ectologger.Logger
	db           TxBeginner
	questionRepo QuestionRepository
	answerRepo   AnswerRepository
	runRepo      RunRepository
	emitter      Emitter
}

// NewEngine creates a new approval engine
func NewEngine(
	logger ectologger.Logger,
	db TxBeginner,
	questionRepo QuestionRepository,
	answerRepo AnswerRepository,
	runRepo RunRepository,
	emitter Emitter,
) *Engine {
	return &Engine{
		logger:       logger,
		db:           db,
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
		runRepo:      runRepo,
		emitter:      emitter,
	}
}

// QuestionDecision is the outcome of a question approval update
type QuestionDecision struct {
	Question     *models.QuestionStaging
	AnswersReset int64
}

// SetQuestionApproval approves or rejects a staging question. Rejecting a
// question force-resets its approved answer to pending so no answer stays
// approved under a rejected parent. Repeating the same decision is allowed
// and idempotent.
func (e *Engine) SetQuestionApproval(ctx context.Context, tenantID string, questionID string, approved bool) (*QuestionDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Engine.SetQuestionApproval")
	defer span.End()

	approval := models.ApprovalFromBool(approved)
	now := time.Now().UTC()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"question_id": questionID,
		"approval":    approval.String(),
	})

	txCtx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	question, err := e.questionRepo.Get(txCtx, tenantID, questionID)
	if err != nil {
		return nil, err
	}

	if err := e.questionRepo.SetApproval(txCtx, tenantID, questionID, approval, now); err != nil {
		return nil, err
	}

	var answersReset int64
	if approval.IsRejected() {
		answersReset, err = e.answerRepo.ResetApprovedByQuestionID(txCtx, tenantID, questionID, now)
		if err != nil {
			return nil, err
		}
	}

	if err := e.runRepo.TouchStagingChange(txCtx, tenantID, question.RunID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit approval update")
	}

	metrics.ApprovalUpdatesTotal.WithLabelValues(tenantID, "question", approval.String()).Inc()
	if answersReset > 0 {
		metrics.ApprovalCascadesTotal.WithLabelValues(tenantID).Add(float64(answersReset))
	}

	if e.emitter != nil {
		if err := e.emitter.EmitApprovalUpdated(ctx, tenantID, question.RunID, "question", questionID, approval); err != nil {
			log.WithError(err).Warn("Failed to emit approval event")
		}
	}

	question.Approval = approval
	question.UpdatedAt = now
	log.WithFields(map[string]any{"answers_reset": answersReset}).Info("Updated question approval")
	return &QuestionDecision{Question: question, AnswersReset: answersReset}, nil
}

// SetAnswerApproval approves or rejects a staging answer. Repeating the same
// decision is allowed and idempotent.
func (e *Engine) SetAnswerApproval(ctx context.Context, tenantID string, answerID string, approved bool) (*models.AnswerStaging, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Engine.SetAnswerApproval")
	defer span.End()

	approval := models.ApprovalFromBool(approved)
	now := time.Now().UTC()

	txCtx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	answer, err := e.answerRepo.Get(txCtx, tenantID, answerID)
	if err != nil {
		return nil, err
	}

	if err := e.answerRepo.SetApproval(txCtx, tenantID, answerID, approval, now); err != nil {
		return nil, err
	}

	if err := e.runRepo.TouchStagingChange(txCtx, tenantID, answer.RunID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit approval update")
	}

	metrics.ApprovalUpdatesTotal.WithLabelValues(tenantID, "answer", approval.String()).Inc()

	if e.emitter != nil {
		if err := e.emitter.EmitApprovalUpdated(ctx, tenantID, answer.RunID, "answer", answerID, approval); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit approval event")
		}
	}

	answer.Approval = approval
	answer.UpdatedAt = now
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"answer_id": answerID,
		"approval":  approval.String(),
	}).Info("Updated answer approval")
	return answer, nil
}
