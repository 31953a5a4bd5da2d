package tags

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

type fakeQuestionRepo struct {
	questions map[string]*models.QuestionStaging
}

func (r *fakeQuestionRepo) Get(ctx context.Context, tenantID string, id string) (*models.QuestionStaging, error) {
	q, ok := r.questions[id]
	if !ok || q.TenantID != tenantID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "question %s not found", id)
	}
	return q, nil
}

type fakeRunRepo struct {
	touched []string
}

func (r *fakeRunRepo) TouchStagingChange(ctx context.Context, tenantID string, id string, at time.Time) error {
	r.touched = append(r.touched, id)
	return nil
}

type fakeTagRepo struct {
	tagsByName map[string]models.Tag
	links      map[string]map[string]bool // questionID -> tagID set
}

func newFakeTagRepo() *fakeTagRepo {
	return &fakeTagRepo{tagsByName: map[string]models.Tag{}, links: map[string]map[string]bool{}}
}

func (r *fakeTagRepo) GetOrCreateByName(ctx context.Context, tenantID string, name string) (*models.Tag, error) {
	if t, ok := r.tagsByName[name]; ok {
		return &t, nil
	}
	t := models.Tag{ID: uuid.NewString(), TenantID: tenantID, Name: name}
	r.tagsByName[name] = t
	return &t, nil
}

func (r *fakeTagRepo) List(ctx context.Context, tenantID string) ([]models.Tag, error) {
	out := make([]models.Tag, 0, len(r.tagsByName))
	for _, t := range r.tagsByName {
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTagRepo) ListByStagingQuestion(ctx context.Context, tenantID string, questionID string) ([]models.Tag, error) {
	var out []models.Tag
	for _, t := range r.tagsByName {
		if r.links[questionID][t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTagRepo) LinkStagingQuestion(ctx context.Context, questionID string, tagID string) error {
	if r.links[questionID] == nil {
		r.links[questionID] = map[string]bool{}
	}
	r.links[questionID][tagID] = true
	return nil
}

func (r *fakeTagRepo) UnlinkStagingQuestion(ctx context.Context, questionID string, tagID string) error {
	delete(r.links[questionID], tagID)
	return nil
}

func newFixture() (*Manager, *fakeRunRepo, *fakeTagRepo) {
	questions := &fakeQuestionRepo{questions: map[string]*models.QuestionStaging{
		"q1": {ID: "q1", TenantID: testTenant, RunID: "run-1", QuestionText: "What is addition?"},
	}}
	runs := &fakeRunRepo{}
	tags := newFakeTagRepo()
	manager := NewManager(testLogger(), &fakeDB{}, questions, runs, tags)
	return manager, runs, tags
}

func tagNames(tags []models.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

func TestNormalizeNames(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "trims whitespace",
			input:    []string{" math ", "basics"},
			expected: []string{"math", "basics"},
		},
		{
			name:     "drops empties",
			input:    []string{"math", "", "   "},
			expected: []string{"math"},
		},
		{
			name:     "collapses duplicates keeping first-seen order",
			input:    []string{"math", "basics", "math "},
			expected: []string{"math", "basics"},
		},
		{
			name:     "case sensitive",
			input:    []string{"Math", "math"},
			expected: []string{"Math", "math"},
		},
		{
			name:     "empty input",
			input:    nil,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeNames(tt.input))
		})
	}
}

func TestReplaceQuestionTags(t *testing.T) {
	manager, runs, _ := newFixture()

	result, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", []string{"math", "basics"})
	require.NoError(t, err)

	assert.Equal(t, []string{"basics", "math"}, tagNames(result), "results are ordered by name")
	assert.Equal(t, []string{"run-1"}, runs.touched)
}

func TestReplaceQuestionTags_Diff(t *testing.T) {
	manager, _, tags := newFixture()

	_, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", []string{"math", "basics"})
	require.NoError(t, err)

	result, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", []string{"math", "algebra"})
	require.NoError(t, err)

	assert.Equal(t, []string{"algebra", "math"}, tagNames(result))
	assert.Len(t, tags.links["q1"], 2)
	// removed link does not delete the tag itself
	_, stillExists := tags.tagsByName["basics"]
	assert.True(t, stillExists)
}

func TestReplaceQuestionTags_IdempotentReplay(t *testing.T) {
	manager, runs, _ := newFixture()

	_, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", []string{"math"})
	require.NoError(t, err)

	result, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", []string{"math"})
	require.NoError(t, err)

	assert.Equal(t, []string{"math"}, tagNames(result))
	assert.Len(t, runs.touched, 1, "replaying the same set is not a staging change")
}

func TestReplaceQuestionTags_EmptySetClears(t *testing.T) {
	manager, _, tags := newFixture()

	_, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", []string{"math", "basics"})
	require.NoError(t, err)

	result, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", nil)
	require.NoError(t, err)

	assert.Empty(t, result)
	assert.Empty(t, tags.links["q1"])
}

func TestReplaceQuestionTags_SharedAcrossQuestions(t *testing.T) {
	manager, _, tags := newFixture()

	first, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", []string{"math"})
	require.NoError(t, err)

	created, err := tags.GetOrCreateByName(context.Background(), testTenant, "math")
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, created.ID, "same name resolves to the same tag")
}

func TestReplaceQuestionTags_QuestionNotFound(t *testing.T) {
	manager, runs, _ := newFixture()

	_, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "missing", []string{"math"})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	assert.Empty(t, runs.touched)
}

func TestListQuestionTags(t *testing.T) {
	manager, _, _ := newFixture()

	_, err := manager.ReplaceQuestionTags(context.Background(), testTenant, "q1", []string{"math"})
	require.NoError(t, err)

	result, err := manager.ListQuestionTags(context.Background(), testTenant, "q1")
	require.NoError(t, err)
	assert.Equal(t, []string{"math"}, tagNames(result))
}
