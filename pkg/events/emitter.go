// Package events emits run lifecycle events for downstream consumers
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Emitter publishes staging lifecycle events. Emission is best-effort: the
// engines call it after their transaction commits and only log failures.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitQuestionsGenerated emits a question.generated event for a batch of
// freshly staged questions.
func (e *Emitter) EmitQuestionsGenerated(ctx context.Context, tenantID, runID string, questions []models.QuestionStaging) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitQuestionsGenerated")
	defer span.End()

	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	payload, err := json.Marshal(map[string]any{"question_ids": ids, "count": len(ids)})
	if err != nil {
		return err
	}

	return e.publish(ctx, &kafka.StagingEvent{
		EventType: "question.generated",
		TenantID:  tenantID,
		RunID:     runID,
		Payload:   payload,
	})
}

// EmitAnswersGenerated emits an answer.generated event for a batch of freshly
// staged answers.
func (e *Emitter) EmitAnswersGenerated(ctx context.Context, tenantID, runID string, answers []models.AnswerStaging) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAnswersGenerated")
	defer span.End()

	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.ID)
	}
	payload, err := json.Marshal(map[string]any{"answer_ids": ids, "count": len(ids)})
	if err != nil {
		return err
	}

	return e.publish(ctx, &kafka.StagingEvent{
		EventType: "answer.generated",
		TenantID:  tenantID,
		RunID:     runID,
		Payload:   payload,
	})
}

// EmitApprovalUpdated emits an approval.updated event. Kind is "question" or
// "answer".
func (e *Emitter) EmitApprovalUpdated(ctx context.Context, tenantID, runID, kind, entityID string, approval models.Approval) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitApprovalUpdated")
	defer span.End()

	payload, err := json.Marshal(map[string]any{"kind": kind, "approval": approval.String()})
	if err != nil {
		return err
	}

	return e.publish(ctx, &kafka.StagingEvent{
		EventType: "approval.updated",
		TenantID:  tenantID,
		RunID:     runID,
		EntityID:  entityID,
		Payload:   payload,
	})
}

// EmitRunSynced emits a run.synced event with the sync counts
func (e *Emitter) EmitRunSynced(ctx context.Context, tenantID string, result *models.SyncResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunSynced")
	defer span.End()

	payload, err := json.Marshal(map[string]any{
		"questions_synced": result.QuestionsSynced,
		"answers_synced":   result.AnswersSynced,
		"last_sync_at":     result.LastSyncAt,
	})
	if err != nil {
		return err
	}

	return e.publish(ctx, &kafka.StagingEvent{
		EventType: "run.synced",
		TenantID:  tenantID,
		RunID:     result.RunID,
		Payload:   payload,
	})
}

func (e *Emitter) publish(ctx context.Context, event *kafka.StagingEvent) error {
	if err := e.producer.PublishStagingEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"event_type": event.EventType, "run_id": event.RunID}).Error("Failed to emit event")
		return err
	}
	return nil
}
