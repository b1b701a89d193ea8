package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aerr "github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/data/repos/testutil"
	"github.com/yungbote/persona-backend/internal/domain"
)

func newStore(t *testing.T) (*Store, ResponseRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	responses := NewResponseRepo(db, log)
	return NewStore(db, NewAnalysisRepo(db, log), responses, 5*time.Second, log), responses
}

func sampleAnalysis(overview string) *domain.PersonalityAnalysis {
	return &domain.PersonalityAnalysis{
		ID:        "analysis-1",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Overview:  overview,
		Traits: []domain.Trait{{
			Trait:       "Openness",
			Score:       7.5,
			Description: "Curious",
			Strengths:   []string{"ideas"},
		}},
		IntelligenceScore: 80,
		CoreTraits:        domain.CoreTraits{Primary: "Analytical", AdaptabilityScore: 70},
	}
}

func sampleResponses() []domain.RawResponse {
	ts := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	return []domain.RawResponse{
		{QuestionID: "cog-1", SelectedOption: "I plan ahead", Category: "cognitive", Timestamp: &ts},
		{QuestionID: "emo-1", CustomResponse: "I notice my moods quickly", Category: "emotional"},
	}
}

func TestStoreSaveThenFetchRoundTrip(t *testing.T) {
	store, responses := newStore(t)
	ctx := context.Background()
	want := sampleAnalysis("A careful planner.")

	id, err := store.Save(ctx, SaveInput{
		AssessmentID: "assess-1",
		UserID:       "user-1",
		Variant:      aerr.VariantDeep,
		Analysis:     want,
		Responses:    sampleResponses(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := store.FetchByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Analysis)
	assert.Equal(t, "assess-1", rec.AssessmentID)
	assert.Equal(t, id, rec.ID)
	assert.False(t, rec.Degraded)

	byAssessment, err := store.FetchByAssessmentID(ctx, "assess-1")
	require.NoError(t, err)
	assert.Equal(t, id, byAssessment.ID)

	latest, err := store.FetchLatestForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)

	n, err := responses.CountByAssessmentID(ctx, nil, "assess-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStoreResubmissionReplacesAnalysis(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, SaveInput{AssessmentID: "assess-1", UserID: "user-1", Variant: aerr.VariantDeep, Analysis: sampleAnalysis("first")})
	require.NoError(t, err)
	second, err := store.Save(ctx, SaveInput{AssessmentID: "assess-1", UserID: "user-1", Variant: aerr.VariantDeep, Analysis: sampleAnalysis("second"), Degraded: true})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rec, err := store.FetchByID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "second", rec.Analysis.Overview)
	assert.True(t, rec.Degraded)
}

func TestStoreNotFound(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.FetchByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FetchByID(ctx, "7b0b5b4e-6f58-4b7a-9a53-2b8b6f5d8f21")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FetchByAssessmentID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FetchLatestForUser(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFailuresArePersistenceErrors(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	store := NewStore(db, NewAnalysisRepo(db, log), NewResponseRepo(db, log), time.Second, log)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = store.Save(context.Background(), SaveInput{AssessmentID: "assess-1", Analysis: sampleAnalysis("x")})
	var pe *aerr.PersistenceError
	require.True(t, errors.As(err, &pe), "err=%v", err)
	assert.Equal(t, "save", pe.Op)
	assert.Equal(t, "assess-1", pe.AssessmentID)

	_, err = store.FetchByAssessmentID(context.Background(), "assess-1")
	require.True(t, errors.As(err, &pe), "err=%v", err)

	_, err = store.Save(context.Background(), SaveInput{AssessmentID: "assess-2"})
	require.True(t, errors.As(err, &pe), "nil analysis err=%v", err)
}
