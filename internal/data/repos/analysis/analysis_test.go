package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/persona-backend/internal/data/repos/testutil"
	"github.com/yungbote/persona-backend/internal/domain"
)

func TestAnalysisRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewAnalysisRepo(db, testutil.Logger(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := testutil.SeedAnalysis(t, ctx, tx, "assess-old", "user-1", base)
	newer := testutil.SeedAnalysis(t, ctx, tx, "assess-new", "user-1", base.Add(time.Hour))
	testutil.SeedAnalysis(t, ctx, tx, "assess-other", "user-2", base.Add(2*time.Hour))

	got, err := repo.GetByID(ctx, tx, older.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.AssessmentID != "assess-old" {
		t.Fatalf("GetByID: unexpected row %+v", got)
	}

	got, err = repo.GetByAssessmentID(ctx, tx, "assess-new")
	if err != nil {
		t.Fatalf("GetByAssessmentID: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("GetByAssessmentID: id=%s want %s", got.ID, newer.ID)
	}

	got, err = repo.GetLatestForUser(ctx, tx, "user-1")
	if err != nil {
		t.Fatalf("GetLatestForUser: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("GetLatestForUser: id=%s want %s", got.ID, newer.ID)
	}

	if _, err := repo.GetByID(ctx, tx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID missing: err=%v", err)
	}
	if _, err := repo.GetLatestForUser(ctx, tx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetLatestForUser missing: err=%v", err)
	}
}

func TestAnalysisRepoUpsertKeepsRowID(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewAnalysisRepo(db, testutil.Logger(t))
	ctx := context.Background()

	first, err := repo.Upsert(ctx, tx, &domain.StoredAnalysis{
		AssessmentID: "assess-1",
		UserID:       "user-1",
		Variant:      "analyze-responses-deep",
		AnalysisData: datatypes.JSON([]byte(`{"overview":"first"}`)),
	})
	if err != nil {
		t.Fatalf("Upsert first: %v", err)
	}

	second, err := repo.Upsert(ctx, tx, &domain.StoredAnalysis{
		AssessmentID: "assess-1",
		UserID:       "user-1",
		Variant:      "big-me-analysis",
		AnalysisData: datatypes.JSON([]byte(`{"overview":"second"}`)),
		Degraded:     true,
	})
	if err != nil {
		t.Fatalf("Upsert second: %v", err)
	}
	if first != second {
		t.Fatalf("resubmission changed row id: %s -> %s", first, second)
	}

	row, err := repo.GetByID(ctx, tx, first)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Variant != "big-me-analysis" || !row.Degraded {
		t.Fatalf("row not updated: %+v", row)
	}
	if string(row.AnalysisData) != `{"overview":"second"}` {
		t.Fatalf("analysis_data=%s", row.AnalysisData)
	}
}

func TestAnalysisRepoUpsertRejectsOtherUser(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewAnalysisRepo(db, testutil.Logger(t))
	ctx := context.Background()

	owned, err := repo.Upsert(ctx, tx, &domain.StoredAnalysis{
		AssessmentID: "assess-owned",
		UserID:       "owner",
		Variant:      "analyze-responses-deep",
		AnalysisData: datatypes.JSON([]byte(`{"overview":"mine"}`)),
	})
	if err != nil {
		t.Fatalf("Upsert owner: %v", err)
	}

	_, err = repo.Upsert(ctx, tx, &domain.StoredAnalysis{
		AssessmentID: "assess-owned",
		UserID:       "intruder",
		Variant:      "analyze-responses-deep",
		AnalysisData: datatypes.JSON([]byte(`{"overview":"overwritten"}`)),
	})
	if !errors.Is(err, ErrOwnedByOtherUser) {
		t.Fatalf("Upsert intruder: err=%v", err)
	}

	row, err := repo.GetByID(ctx, tx, owned)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.UserID != "owner" || string(row.AnalysisData) != `{"overview":"mine"}` {
		t.Fatalf("stored row changed: user=%s data=%s", row.UserID, row.AnalysisData)
	}
}
