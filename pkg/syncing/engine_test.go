package syncing

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/internal/repositories/actualanswer"
	"github.com/Ramsey-B/sage/internal/repositories/actualquestion"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
)

const testTenant = "tenant-1"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeTx struct{}

func (t *fakeTx) IsOpen() bool                       { return true }
func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

type fakeDB struct{}

func (db *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &fakeTx{}, nil
}

type fakeRunRepo struct {
	runs map[string]*models.Run
}

func (r *fakeRunRepo) Get(ctx context.Context, tenantID string, id string) (*models.Run, error) {
	run, ok := r.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "run %s not found", id)
	}
	return run, nil
}

func (r *fakeRunRepo) SetLastSyncAt(ctx context.Context, tenantID string, id string, at time.Time) error {
	run, ok := r.runs[id]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "run %s not found", id)
	}
	run.LastSyncAt = &at
	return nil
}

type fakeQuestionRepo struct {
	approved []models.QuestionStaging
}

func (r *fakeQuestionRepo) ListApprovedByRun(ctx context.Context, tenantID, runID string) ([]models.QuestionStaging, error) {
	return r.approved, nil
}

type fakeAnswerRepo struct {
	byQuestion map[string]*models.AnswerStaging
}

func (r *fakeAnswerRepo) GetByQuestionID(ctx context.Context, tenantID string, questionID string) (*models.AnswerStaging, error) {
	return r.byQuestion[questionID], nil
}

type fakeActualQuestionRepo struct {
	byStagingID map[string]*models.ActualQuestion
}

func (r *fakeActualQuestionRepo) UpsertFromStaging(ctx context.Context, tenantID string, staging models.QuestionStaging, at time.Time) (*actualquestion.UpsertResult, error) {
	if existing, ok := r.byStagingID[staging.ID]; ok {
		existing.QuestionText = staging.QuestionText
		existing.UpdatedAt = at
		return &actualquestion.UpsertResult{Question: existing, IsNew: false}, nil
	}
	stagingID := staging.ID
	actual := &models.ActualQuestion{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		RunID:        staging.RunID,
		StagingID:    &stagingID,
		QuestionText: staging.QuestionText,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	r.byStagingID[staging.ID] = actual
	return &actualquestion.UpsertResult{Question: actual, IsNew: true}, nil
}

type fakeActualAnswerRepo struct {
	byQuestionID map[string]*models.ActualAnswer
}

func (r *fakeActualAnswerRepo) UpsertFromStaging(ctx context.Context, tenantID, questionID string, staging models.AnswerStaging, at time.Time) (*actualanswer.UpsertResult, error) {
	if existing, ok := r.byQuestionID[questionID]; ok {
		existing.AnswerText = staging.AnswerText
		existing.UpdatedAt = at
		return &actualanswer.UpsertResult{Answer: existing, IsNew: false}, nil
	}
	stagingID := staging.ID
	actual := &models.ActualAnswer{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		RunID:      staging.RunID,
		QuestionID: questionID,
		StagingID:  &stagingID,
		AnswerText: staging.AnswerText,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	r.byQuestionID[questionID] = actual
	return &actualanswer.UpsertResult{Answer: actual, IsNew: true}, nil
}

type fakeTagRepo struct {
	byStagingQuestion map[string][]models.Tag
	actualLinks       map[string][]string
}

func (r *fakeTagRepo) ListByStagingQuestion(ctx context.Context, tenantID string, questionID string) ([]models.Tag, error) {
	return r.byStagingQuestion[questionID], nil
}

func (r *fakeTagRepo) ReplaceActualQuestionLinks(ctx context.Context, questionID string, tagIDs []string) error {
	r.actualLinks[questionID] = tagIDs
	return nil
}

type fakeEmitter struct {
	results []*models.SyncResult
}

func (e *fakeEmitter) EmitRunSynced(ctx context.Context, tenantID string, result *models.SyncResult) error {
	e.results = append(e.results, result)
	return nil
}

type fakeProjector struct {
	projected [][]models.ActualQuestionView
}

func (p *fakeProjector) ProjectRunSync(ctx context.Context, tenantID string, runID string, questions []models.ActualQuestionView) error {
	p.projected = append(p.projected, questions)
	return nil
}

type fixture struct {
	engine          *Engine
	runs            *fakeRunRepo
	questions       *fakeQuestionRepo
	answers         *fakeAnswerRepo
	actualQuestions *fakeActualQuestionRepo
	actualAnswers   *fakeActualAnswerRepo
	tags            *fakeTagRepo
	emitter         *fakeEmitter
	projector       *fakeProjector
}

func newFixture() *fixture {
	runs := &fakeRunRepo{runs: map[string]*models.Run{
		"run-1": {ID: "run-1", TenantID: testTenant, Summary: "Basic arithmetic."},
	}}
	questions := &fakeQuestionRepo{}
	answers := &fakeAnswerRepo{byQuestion: map[string]*models.AnswerStaging{}}
	actualQuestions := &fakeActualQuestionRepo{byStagingID: map[string]*models.ActualQuestion{}}
	actualAnswers := &fakeActualAnswerRepo{byQuestionID: map[string]*models.ActualAnswer{}}
	tags := &fakeTagRepo{byStagingQuestion: map[string][]models.Tag{}, actualLinks: map[string][]string{}}
	emitter := &fakeEmitter{}
	projector := &fakeProjector{}
	engine := NewEngine(testLogger(), &fakeDB{}, runs, questions, answers, actualQuestions, actualAnswers, tags, emitter, projector, nil)
	return &fixture{
		engine:          engine,
		runs:            runs,
		questions:       questions,
		answers:         answers,
		actualQuestions: actualQuestions,
		actualAnswers:   actualAnswers,
		tags:            tags,
		emitter:         emitter,
		projector:       projector,
	}
}

func approvedQuestion(id, text string) models.QuestionStaging {
	return models.QuestionStaging{
		ID:           id,
		TenantID:     testTenant,
		RunID:        "run-1",
		QuestionText: text,
		Approval:     models.ApprovalApproved,
	}
}

func TestSyncToActual(t *testing.T) {
	f := newFixture()
	f.questions.approved = []models.QuestionStaging{
		approvedQuestion("q1", "What is addition?"),
		approvedQuestion("q2", "What is subtraction?"),
	}
	f.answers.byQuestion["q1"] = &models.AnswerStaging{
		ID: "a1", TenantID: testTenant, RunID: "run-1", QuestionID: "q1",
		AnswerText: "Combining numbers.", Approval: models.ApprovalApproved,
	}
	f.tags.byStagingQuestion["q1"] = []models.Tag{{ID: "t1", TenantID: testTenant, Name: "arithmetic"}}

	result, err := f.engine.SyncToActual(context.Background(), testTenant, "run-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.QuestionsSynced)
	assert.Equal(t, 1, result.AnswersSynced)
	require.NotNil(t, f.runs.runs["run-1"].LastSyncAt)
	assert.Equal(t, result.LastSyncAt, *f.runs.runs["run-1"].LastSyncAt)

	require.Len(t, f.actualQuestions.byStagingID, 2)
	actualQ1 := f.actualQuestions.byStagingID["q1"]
	assert.Equal(t, "What is addition?", actualQ1.QuestionText)
	assert.Equal(t, []string{"t1"}, f.tags.actualLinks[actualQ1.ID])

	synced := f.actualAnswers.byQuestionID[actualQ1.ID]
	require.NotNil(t, synced)
	assert.Equal(t, "Combining numbers.", synced.AnswerText)

	require.Len(t, f.emitter.results, 1)
	require.Len(t, f.projector.projected, 1)
	assert.Len(t, f.projector.projected[0], 2)
}

func TestSyncToActual_PendingAnswerNotSynced(t *testing.T) {
	f := newFixture()
	f.questions.approved = []models.QuestionStaging{approvedQuestion("q1", "What is addition?")}
	f.answers.byQuestion["q1"] = &models.AnswerStaging{
		ID: "a1", TenantID: testTenant, RunID: "run-1", QuestionID: "q1",
		AnswerText: "Combining numbers.", Approval: models.ApprovalPending,
	}

	result, err := f.engine.SyncToActual(context.Background(), testTenant, "run-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.QuestionsSynced)
	assert.Zero(t, result.AnswersSynced)
	assert.Empty(t, f.actualAnswers.byQuestionID)
}

func TestSyncToActual_Idempotent(t *testing.T) {
	f := newFixture()
	f.questions.approved = []models.QuestionStaging{approvedQuestion("q1", "What is addition?")}

	first, err := f.engine.SyncToActual(context.Background(), testTenant, "run-1")
	require.NoError(t, err)
	firstID := f.actualQuestions.byStagingID["q1"].ID

	second, err := f.engine.SyncToActual(context.Background(), testTenant, "run-1")
	require.NoError(t, err)

	assert.Equal(t, first.QuestionsSynced, second.QuestionsSynced)
	assert.Len(t, f.actualQuestions.byStagingID, 1, "re-sync updates in place")
	assert.Equal(t, firstID, f.actualQuestions.byStagingID["q1"].ID)
}

func TestSyncToActual_RevokedApprovalLeavesActualRow(t *testing.T) {
	f := newFixture()
	f.questions.approved = []models.QuestionStaging{approvedQuestion("q1", "What is addition?")}

	_, err := f.engine.SyncToActual(context.Background(), testTenant, "run-1")
	require.NoError(t, err)

	// Reviewer later rejects the question; it drops out of the approved set.
	f.questions.approved = nil

	result, err := f.engine.SyncToActual(context.Background(), testTenant, "run-1")
	require.NoError(t, err)

	assert.Zero(t, result.QuestionsSynced)
	assert.Len(t, f.actualQuestions.byStagingID, 1, "already promoted rows are never retracted")
}

func TestSyncToActual_NothingApproved(t *testing.T) {
	f := newFixture()

	result, err := f.engine.SyncToActual(context.Background(), testTenant, "run-1")
	require.NoError(t, err)

	assert.Zero(t, result.QuestionsSynced)
	assert.Zero(t, result.AnswersSynced)
	assert.NotNil(t, f.runs.runs["run-1"].LastSyncAt, "empty syncs still stamp last_sync_at")
}

func TestSyncToActual_RunNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.engine.SyncToActual(context.Background(), testTenant, "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
