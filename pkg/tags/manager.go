// Package tags manages the tag sets attached to staging questions.
package tags

import (
	"context"
	"database/sql"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// QuestionRepository is the staging question surface the manager needs
type QuestionRepository interface {
	Get(ctx context.Context, tenantID string, id string) (*models.QuestionStaging, error)
}

// RunRepository is the run surface the manager needs
type RunRepository interface {
	TouchStagingChange(ctx context.Context, tenantID string, id string, at time.Time) error
}

// TagRepository is the tag surface the manager needs
type TagRepository interface {
	GetOrCreateByName(ctx context.Context, tenantID string, name string) (*models.Tag, error)
	List(ctx context.Context, tenantID string) ([]models.Tag, error)
	ListByStagingQuestion(ctx context.Context, tenantID string, questionID string) ([]models.Tag, error)
	LinkStagingQuestion(ctx context.Context, questionID string, tagID string) error
	UnlinkStagingQuestion(ctx context.Context, questionID string, tagID string) error
}

// TxBeginner opens or joins a context-carried transaction
type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Manager replaces question tag sets by diffing desired names against current
// links. Tags are created on first use and shared tenant-wide; removing a link
// never deletes the tag itself.
type Manager struct {
	logger       ectologger.Logger
	db           TxBeginner
	questionRepo QuestionRepository
	runRepo      RunRepository
	tagRepo      TagRepository
}

// NewManager creates a new tag manager
func NewManager(
	logger ectologger.Logger,
	db TxBeginner,
	questionRepo QuestionRepository,
	runRepo RunRepository,
	tagRepo TagRepository,
) *Manager {
	return &Manager{
		logger:       logger,
		db:           db,
		questionRepo: questionRepo,
		runRepo:      runRepo,
		tagRepo:      tagRepo,
	}
}

// ReplaceQuestionTags makes the question's tag set exactly the given names.
// Names are trimmed, empties dropped, and duplicates collapsed; matching is
// case-sensitive. Replaying the same set is a no-op and an empty set clears
// every link.
func (m *Manager) ReplaceQuestionTags(ctx context.Context, tenantID string, questionID string, names []string) ([]models.Tag, error) {
	ctx, span := tracing.StartSpan(ctx, "tags.Manager.ReplaceQuestionTags")
	defer span.End()

	desired := NormalizeNames(names)

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"question_id": questionID,
		"tags":        len(desired),
	})

	txCtx, tx, err := m.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	question, err := m.questionRepo.Get(txCtx, tenantID, questionID)
	if err != nil {
		return nil, err
	}

	current, err := m.tagRepo.ListByStagingQuestion(txCtx, tenantID, questionID)
	if err != nil {
		return nil, err
	}
	currentByName := make(map[string]models.Tag, len(current))
	for _, t := range current {
		currentByName[t.Name] = t
	}

	result := make([]models.Tag, 0, len(desired))
	desiredNames := make(map[string]bool, len(desired))
	changed := false
	for _, name := range desired {
		desiredNames[name] = true
		if t, ok := currentByName[name]; ok {
			result = append(result, t)
			continue
		}
		t, err := m.tagRepo.GetOrCreateByName(txCtx, tenantID, name)
		if err != nil {
			return nil, err
		}
		if err := m.tagRepo.LinkStagingQuestion(txCtx, questionID, t.ID); err != nil {
			return nil, err
		}
		result = append(result, *t)
		changed = true
	}

	for _, t := range current {
		if desiredNames[t.Name] {
			continue
		}
		if err := m.tagRepo.UnlinkStagingQuestion(txCtx, questionID, t.ID); err != nil {
			return nil, err
		}
		changed = true
	}

	if changed {
		if err := m.runRepo.TouchStagingChange(txCtx, tenantID, question.RunID, time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit tag update")
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	log.WithFields(map[string]any{"changed": changed}).Info("Replaced question tags")
	return result, nil
}

// ListQuestionTags returns the question's current tags ordered by name
func (m *Manager) ListQuestionTags(ctx context.Context, tenantID string, questionID string) ([]models.Tag, error) {
	ctx, span := tracing.StartSpan(ctx, "tags.Manager.ListQuestionTags")
	defer span.End()

	if _, err := m.questionRepo.Get(ctx, tenantID, questionID); err != nil {
		return nil, err
	}
	return m.tagRepo.ListByStagingQuestion(ctx, tenantID, questionID)
}

// NormalizeNames trims whitespace, drops empties, and collapses duplicates
// while preserving first-seen order.
func NormalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
