package syncing

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/approval"
	"github.com/Ramsey-B/sage/pkg/generation"
	"github.com/Ramsey-B/sage/pkg/models"
)

// memStore is a shared in-memory backing store so the generation, approval,
// and sync engines in one test all see the same staging state.
type memStore struct {
	runs      map[string]*models.Run
	questions map[string]*models.QuestionStaging
	qOrder    []string
	answers   map[string]*models.AnswerStaging
	aOrder    []string
}

func newMemStore() *memStore {
	return &memStore{
		runs:      map[string]*models.Run{},
		questions: map[string]*models.QuestionStaging{},
		answers:   map[string]*models.AnswerStaging{},
	}
}

type memRuns struct{ s *memStore }

func (r *memRuns) Get(ctx context.Context, tenantID string, id string) (*models.Run, error) {
	run, ok := r.s.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "run %s not found", id)
	}
	return run, nil
}

func (r *memRuns) TouchStagingChange(ctx context.Context, tenantID string, id string, at time.Time) error {
	run, ok := r.s.runs[id]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "run %s not found", id)
	}
	run.LastStagingChangeAt = &at
	return nil
}

func (r *memRuns) SetLastSyncAt(ctx context.Context, tenantID string, id string, at time.Time) error {
	run, ok := r.s.runs[id]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "run %s not found", id)
	}
	run.LastSyncAt = &at
	return nil
}

type memQuestions struct{ s *memStore }

func (r *memQuestions) CreateBatch(ctx context.Context, tenantID, runID string, questionTexts []string) ([]models.QuestionStaging, error) {
	created := make([]models.QuestionStaging, 0, len(questionTexts))
	for _, text := range questionTexts {
		q := &models.QuestionStaging{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			RunID:        runID,
			QuestionText: text,
			Approval:     models.ApprovalPending,
		}
		r.s.questions[q.ID] = q
		r.s.qOrder = append(r.s.qOrder, q.ID)
		created = append(created, *q)
	}
	return created, nil
}

func (r *memQuestions) Get(ctx context.Context, tenantID string, id string) (*models.QuestionStaging, error) {
	q, ok := r.s.questions[id]
	if !ok || q.TenantID != tenantID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "question %s not found", id)
	}
	copied := *q
	return &copied, nil
}

func (r *memQuestions) SetApproval(ctx context.Context, tenantID string, id string, a models.Approval, at time.Time) error {
	q, ok := r.s.questions[id]
	if !ok || q.TenantID != tenantID {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "question %s not found", id)
	}
	q.Approval = a
	q.UpdatedAt = at
	return nil
}

func (r *memQuestions) ListApprovedByRun(ctx context.Context, tenantID, runID string) ([]models.QuestionStaging, error) {
	out := []models.QuestionStaging{}
	for _, id := range r.s.qOrder {
		q := r.s.questions[id]
		if q.RunID == runID && q.Approval.IsApproved() {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (r *memQuestions) ListApprovedWithoutAnswer(ctx context.Context, tenantID, runID string) ([]models.QuestionStaging, error) {
	answered := map[string]bool{}
	for _, a := range r.s.answers {
		answered[a.QuestionID] = true
	}
	out := []models.QuestionStaging{}
	for _, id := range r.s.qOrder {
		q := r.s.questions[id]
		if q.RunID == runID && q.Approval.IsApproved() && !answered[q.ID] {
			out = append(out, *q)
		}
	}
	return out, nil
}

type memAnswers struct{ s *memStore }

func (r *memAnswers) Create(ctx context.Context, tenantID, runID, questionID, answerText string) (*models.AnswerStaging, error) {
	a := &models.AnswerStaging{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		RunID:      runID,
		QuestionID: questionID,
		AnswerText: answerText,
		Approval:   models.ApprovalPending,
	}
	r.s.answers[a.ID] = a
	r.s.aOrder = append(r.s.aOrder, a.ID)
	copied := *a
	return &copied, nil
}

func (r *memAnswers) Get(ctx context.Context, tenantID string, id string) (*models.AnswerStaging, error) {
	a, ok := r.s.answers[id]
	if !ok || a.TenantID != tenantID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "answer %s not found", id)
	}
	copied := *a
	return &copied, nil
}

func (r *memAnswers) SetApproval(ctx context.Context, tenantID string, id string, a models.Approval, at time.Time) error {
	answer, ok := r.s.answers[id]
	if !ok || answer.TenantID != tenantID {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "answer %s not found", id)
	}
	answer.Approval = a
	answer.UpdatedAt = at
	return nil
}

func (r *memAnswers) ResetApprovedByQuestionID(ctx context.Context, tenantID string, questionID string, at time.Time) (int64, error) {
	var count int64
	for _, a := range r.s.answers {
		if a.QuestionID == questionID && a.Approval.IsApproved() {
			a.Approval = models.ApprovalPending
			a.UpdatedAt = at
			count++
		}
	}
	return count, nil
}

func (r *memAnswers) GetByQuestionID(ctx context.Context, tenantID string, questionID string) (*models.AnswerStaging, error) {
	for _, a := range r.s.answers {
		if a.TenantID == tenantID && a.QuestionID == questionID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

type scriptedGenerator struct{}

func (g *scriptedGenerator) GenerateQuestions(ctx context.Context, summary string, count int) ([]string, error) {
	out := make([]string, 0, count)
	for i := range count {
		out = append(out, fmt.Sprintf("question %d about %s", i+1, summary))
	}
	return out, nil
}

func (g *scriptedGenerator) GenerateAnswer(ctx context.Context, summary string, question string) (string, error) {
	return "answer to " + question, nil
}

// Full lifecycle of one run: generate three questions, review them, generate
// and approve the surviving answer, sync, then revoke and re-sync.
func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.runs["run-1"] = &models.Run{ID: "run-1", TenantID: testTenant, Summary: "math basics"}

	runs := &memRuns{s: store}
	questions := &memQuestions{s: store}
	answers := &memAnswers{s: store}
	actualQuestions := &fakeActualQuestionRepo{byStagingID: map[string]*models.ActualQuestion{}}
	actualAnswers := &fakeActualAnswerRepo{byQuestionID: map[string]*models.ActualAnswer{}}
	tags := &fakeTagRepo{byStagingQuestion: map[string][]models.Tag{}, actualLinks: map[string][]string{}}

	generationEngine := generation.NewEngine(testLogger(), &fakeDB{}, &scriptedGenerator{}, runs, questions, answers, nil, nil)
	approvalEngine := approval.NewEngine(testLogger(), &fakeDB{}, questions, answers, runs, nil)
	syncEngine := NewEngine(testLogger(), &fakeDB{}, runs, questions, answers, actualQuestions, actualAnswers, tags, nil, nil, nil)

	// Generate three pending questions.
	staged, err := generationEngine.GenerateQuestions(ctx, testTenant, "run-1", 3)
	require.NoError(t, err)
	require.Len(t, staged, 3)
	require.NotNil(t, store.runs["run-1"].LastStagingChangeAt)
	assert.Nil(t, store.runs["run-1"].LastSyncAt)

	// Reject the first and third, approve the second.
	_, err = approvalEngine.SetQuestionApproval(ctx, testTenant, staged[0].ID, false)
	require.NoError(t, err)
	_, err = approvalEngine.SetQuestionApproval(ctx, testTenant, staged[1].ID, true)
	require.NoError(t, err)
	_, err = approvalEngine.SetQuestionApproval(ctx, testTenant, staged[2].ID, false)
	require.NoError(t, err)

	// Exactly one answer, for the approved question.
	generated, err := generationEngine.GenerateAnswers(ctx, testTenant, "run-1")
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.Equal(t, staged[1].ID, generated[0].QuestionID)

	// A second pass has nothing left to answer.
	again, err := generationEngine.GenerateAnswers(ctx, testTenant, "run-1")
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = approvalEngine.SetAnswerApproval(ctx, testTenant, generated[0].ID, true)
	require.NoError(t, err)

	// Sync promotes the one approved pair.
	result, err := syncEngine.SyncToActual(ctx, testTenant, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.QuestionsSynced)
	assert.Equal(t, 1, result.AnswersSynced)
	require.NotNil(t, store.runs["run-1"].LastSyncAt)

	actualQ := actualQuestions.byStagingID[staged[1].ID]
	require.NotNil(t, actualQ)
	require.NotNil(t, actualAnswers.byQuestionID[actualQ.ID])

	// Rejecting the synced question resets the approved answer but leaves the
	// actual rows in place on the next sync.
	decision, err := approvalEngine.SetQuestionApproval(ctx, testTenant, staged[1].ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), decision.AnswersReset)
	assert.True(t, store.answers[generated[0].ID].Approval.IsPending())

	result, err = syncEngine.SyncToActual(ctx, testTenant, "run-1")
	require.NoError(t, err)
	assert.Zero(t, result.QuestionsSynced)
	assert.NotNil(t, actualQuestions.byStagingID[staged[1].ID], "promoted rows are never retracted")
	assert.NotNil(t, actualAnswers.byQuestionID[actualQ.ID])

	// The answered question never becomes eligible again, even un-approved.
	_, err = approvalEngine.SetQuestionApproval(ctx, testTenant, staged[1].ID, true)
	require.NoError(t, err)
	again, err = generationEngine.GenerateAnswers(ctx, testTenant, "run-1")
	require.NoError(t, err)
	assert.Empty(t, again)
}
