package approval

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
)

const testTenant = "tenant-1"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool                       { return !t.committed && !t.rolledBack }
func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (db *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	db.tx = &fakeTx{}
	return ctx, db.tx, nil
}

type fakeQuestionRepo struct {
	questions map[string]*models.QuestionStaging
}

func (r *fakeQuestionRepo) Get(ctx context.Context, tenantID string, id string) (*models.QuestionStaging, error) {
	q, ok := r.questions[id]
	if !ok || q.TenantID != tenantID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "question %s not found", id)
	}
	copied := *q
	return &copied, nil
}

func (r *fakeQuestionRepo) SetApproval(ctx context.Context, tenantID string, id string, approval models.Approval, at time.Time) error {
	q, ok := r.questions[id]
	if !ok || q.TenantID != tenantID {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "question %s not found", id)
	}
	q.Approval = approval
	q.UpdatedAt = at
	return nil
}

type fakeAnswerRepo struct {
	answers map[string]*models.AnswerStaging
}

func (r *fakeAnswerRepo) Get(ctx context.Context, tenantID string, id string) (*models.AnswerStaging, error) {
	a, ok := r.answers[id]
	if !ok || a.TenantID != tenantID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "answer %s not found", id)
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAnswerRepo) SetApproval(ctx context.Context, tenantID string, id string, approval models.Approval, at time.Time) error {
	a, ok := r.answers[id]
	if !ok || a.TenantID != tenantID {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "answer %s not found", id)
	}
	a.Approval = approval
	a.UpdatedAt = at
	return nil
}

func (r *fakeAnswerRepo) ResetApprovedByQuestionID(ctx context.Context, tenantID string, questionID string, at time.Time) (int64, error) {
	var count int64
	for _, a := range r.answers {
		if a.TenantID == tenantID && a.QuestionID == questionID && a.Approval.IsApproved() {
			a.Approval = models.ApprovalPending
			a.UpdatedAt = at
			count++
		}
	}
	return count, nil
}

type fakeRunRepo struct {
	touched []string
}

func (r *fakeRunRepo) TouchStagingChange(ctx context.Context, tenantID string, id string, at time.Time) error {
	r.touched = append(r.touched, id)
	return nil
}

type fakeEmitter struct {
	events []string
}

func (e *fakeEmitter) EmitApprovalUpdated(ctx context.Context, tenantID, runID, kind, entityID string, approval models.Approval) error {
	e.events = append(e.events, kind+":"+entityID+":"+approval.String())
	return nil
}

func newFixture() (*Engine, *fakeDB, *fakeQuestionRepo, *fakeAnswerRepo, *fakeRunRepo, *fakeEmitter) {
	db := &fakeDB{}
	questions := &fakeQuestionRepo{questions: map[string]*models.QuestionStaging{}}
	answers := &fakeAnswerRepo{answers: map[string]*models.AnswerStaging{}}
	runs := &fakeRunRepo{}
	emitter := &fakeEmitter{}
	engine := NewEngine(testLogger(), db, questions, answers, runs, emitter)
	return engine, db, questions, answers, runs, emitter
}

func stageQuestion(repo *fakeQuestionRepo, id, runID string, approval models.Approval) {
	repo.questions[id] = &models.QuestionStaging{
		ID:           id,
		TenantID:     testTenant,
		RunID:        runID,
		QuestionText: "What is addition?",
		Approval:     approval,
	}
}

func stageAnswer(repo *fakeAnswerRepo, id, runID, questionID string, approval models.Approval) {
	repo.answers[id] = &models.AnswerStaging{
		ID:         id,
		TenantID:   testTenant,
		RunID:      runID,
		QuestionID: questionID,
		AnswerText: "Combining numbers.",
		Approval:   approval,
	}
}

func TestSetQuestionApproval_Approve(t *testing.T) {
	engine, db, questions, _, runs, emitter := newFixture()
	stageQuestion(questions, "q1", "run-1", models.ApprovalPending)

	decision, err := engine.SetQuestionApproval(context.Background(), testTenant, "q1", true)
	require.NoError(t, err)

	assert.True(t, decision.Question.Approval.IsApproved())
	assert.Zero(t, decision.AnswersReset)
	assert.True(t, questions.questions["q1"].Approval.IsApproved())
	assert.Equal(t, []string{"run-1"}, runs.touched)
	assert.True(t, db.tx.committed)
	assert.Equal(t, []string{"question:q1:approved"}, emitter.events)
}

func TestSetQuestionApproval_RejectResetsApprovedAnswer(t *testing.T) {
	engine, _, questions, answers, runs, _ := newFixture()
	stageQuestion(questions, "q1", "run-1", models.ApprovalApproved)
	stageAnswer(answers, "a1", "run-1", "q1", models.ApprovalApproved)

	decision, err := engine.SetQuestionApproval(context.Background(), testTenant, "q1", false)
	require.NoError(t, err)

	assert.True(t, decision.Question.Approval.IsRejected())
	assert.Equal(t, int64(1), decision.AnswersReset)
	assert.True(t, answers.answers["a1"].Approval.IsPending(), "approved answer should fall back to pending")
	assert.Equal(t, []string{"run-1"}, runs.touched)
}

func TestSetQuestionApproval_RejectLeavesRejectedAnswer(t *testing.T) {
	engine, _, questions, answers, _, _ := newFixture()
	stageQuestion(questions, "q1", "run-1", models.ApprovalApproved)
	stageAnswer(answers, "a1", "run-1", "q1", models.ApprovalRejected)

	decision, err := engine.SetQuestionApproval(context.Background(), testTenant, "q1", false)
	require.NoError(t, err)

	assert.Zero(t, decision.AnswersReset)
	assert.True(t, answers.answers["a1"].Approval.IsRejected())
}

func TestSetQuestionApproval_Idempotent(t *testing.T) {
	engine, _, questions, _, runs, _ := newFixture()
	stageQuestion(questions, "q1", "run-1", models.ApprovalPending)

	_, err := engine.SetQuestionApproval(context.Background(), testTenant, "q1", true)
	require.NoError(t, err)
	decision, err := engine.SetQuestionApproval(context.Background(), testTenant, "q1", true)
	require.NoError(t, err)

	assert.True(t, decision.Question.Approval.IsApproved())
	assert.Len(t, runs.touched, 2)
}

func TestSetQuestionApproval_NotFound(t *testing.T) {
	engine, _, _, _, runs, emitter := newFixture()

	_, err := engine.SetQuestionApproval(context.Background(), testTenant, "missing", true)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	assert.Empty(t, runs.touched)
	assert.Empty(t, emitter.events)
}

func TestSetQuestionApproval_WrongTenant(t *testing.T) {
	engine, _, questions, _, _, _ := newFixture()
	stageQuestion(questions, "q1", "run-1", models.ApprovalPending)

	_, err := engine.SetQuestionApproval(context.Background(), "other-tenant", "q1", true)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	assert.True(t, questions.questions["q1"].Approval.IsPending())
}

func TestSetAnswerApproval(t *testing.T) {
	engine, _, questions, answers, runs, emitter := newFixture()
	stageQuestion(questions, "q1", "run-1", models.ApprovalApproved)
	stageAnswer(answers, "a1", "run-1", "q1", models.ApprovalPending)

	result, err := engine.SetAnswerApproval(context.Background(), testTenant, "a1", true)
	require.NoError(t, err)

	assert.True(t, result.Approval.IsApproved())
	assert.True(t, answers.answers["a1"].Approval.IsApproved())
	assert.Equal(t, []string{"run-1"}, runs.touched)
	assert.Equal(t, []string{"answer:a1:approved"}, emitter.events)
}

func TestSetAnswerApproval_Reject(t *testing.T) {
	engine, _, _, answers, _, _ := newFixture()
	stageAnswer(answers, "a1", "run-1", "q1", models.ApprovalApproved)

	result, err := engine.SetAnswerApproval(context.Background(), testTenant, "a1", false)
	require.NoError(t, err)

	assert.True(t, result.Approval.IsRejected())
}
