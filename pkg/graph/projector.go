package graph

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Projector writes synced questions, answers, and tag edges into the graph so
// a run's promoted content can be explored alongside the rest of the platform
// graph. Projection runs after the sync transaction commits and is best-effort.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// ProjectRunSync mirrors the run's synced questions into the graph. Question
// nodes hang off the run, answers hang off their question, and tags are
// shared nodes linked by TAGGED edges which are replaced wholesale so the
// graph matches the relational copy.
func (p *Projector) ProjectRunSync(ctx context.Context, tenantID string, runID string, questions []models.ActualQuestionView) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectRunSync")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
		"questions": len(questions),
	})

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (r:Run {id: $id, tenant_id: $tenant_id})
			SET r.synced_at = $synced_at
		`, map[string]any{
			"id":        runID,
			"tenant_id": tenantID,
			"synced_at": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return nil, err
		}

		for _, q := range questions {
			if _, err := tx.Run(ctx, `
				MATCH (r:Run {id: $run_id, tenant_id: $tenant_id})
				MERGE (q:Question {id: $id, tenant_id: $tenant_id})
				SET q.text = $text
				MERGE (r)-[:HAS_QUESTION]->(q)
			`, map[string]any{
				"run_id":    runID,
				"tenant_id": tenantID,
				"id":        q.ID,
				"text":      q.QuestionText,
			}); err != nil {
				return nil, err
			}

			if q.Answer != nil {
				if _, err := tx.Run(ctx, `
					MATCH (q:Question {id: $question_id, tenant_id: $tenant_id})
					MERGE (a:Answer {id: $id, tenant_id: $tenant_id})
					SET a.text = $text
					MERGE (q)-[:HAS_ANSWER]->(a)
				`, map[string]any{
					"question_id": q.ID,
					"tenant_id":   tenantID,
					"id":          q.Answer.ID,
					"text":        q.Answer.AnswerText,
				}); err != nil {
					return nil, err
				}
			}

			if _, err := tx.Run(ctx, `
				MATCH (q:Question {id: $question_id, tenant_id: $tenant_id})-[t:TAGGED]->()
				DELETE t
			`, map[string]any{
				"question_id": q.ID,
				"tenant_id":   tenantID,
			}); err != nil {
				return nil, err
			}
			for _, tag := range q.Tags {
				if _, err := tx.Run(ctx, `
					MATCH (q:Question {id: $question_id, tenant_id: $tenant_id})
					MERGE (t:Tag {name: $name, tenant_id: $tenant_id})
					MERGE (q)-[:TAGGED]->(t)
				`, map[string]any{
					"question_id": q.ID,
					"tenant_id":   tenantID,
					"name":        tag.Name,
				}); err != nil {
					return nil, err
				}
			}
		}

		return nil, nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to project run sync to graph")
		return err
	}

	log.Debug("Projected run sync to graph")
	return nil
}
