package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("analysis not found")

// ErrOwnedByOtherUser is returned by Upsert when the assessment id is already
// stored for a different user. The stored row is left untouched.
var ErrOwnedByOtherUser = errors.New("assessment belongs to another user")

type AnalysisRepo interface {
	// Upsert inserts row or, when its assessment id already exists for the
	// same user, replaces the stored analysis. It returns the id of the
	// persisted row.
	Upsert(ctx context.Context, tx *gorm.DB, row *domain.StoredAnalysis) (uuid.UUID, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.StoredAnalysis, error)
	GetByAssessmentID(ctx context.Context, tx *gorm.DB, assessmentID string) (*domain.StoredAnalysis, error)
	GetLatestForUser(ctx context.Context, tx *gorm.DB, userID string) (*domain.StoredAnalysis, error)
}

type analysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	repoLog := baseLog.With("repo", "AnalysisRepo")
	return &analysisRepo{db: db, log: repoLog}
}

func (r *analysisRepo) Upsert(ctx context.Context, tx *gorm.DB, row *domain.StoredAnalysis) (uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return uuid.Nil, errors.New("nil analysis row")
	}

	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	err := transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "assessment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id",
				"variant",
				"analysis_data",
				"degraded",
				"created_at",
				"updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "personality_analysis.user_id = excluded.user_id"},
			}},
		}).Create(row).Error; err != nil {
			return err
		}
		// On conflict the existing row keeps its id; read it back.
		var stored domain.StoredAnalysis
		if err := inner.Select("id", "user_id").Where("assessment_id = ?", row.AssessmentID).Take(&stored).Error; err != nil {
			return err
		}
		if stored.UserID != row.UserID {
			return ErrOwnedByOtherUser
		}
		row.ID = stored.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

func (r *analysisRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.StoredAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.StoredAnalysis
	if err := transaction.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (r *analysisRepo) GetByAssessmentID(ctx context.Context, tx *gorm.DB, assessmentID string) (*domain.StoredAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.StoredAnalysis
	if err := transaction.WithContext(ctx).Where("assessment_id = ?", assessmentID).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (r *analysisRepo) GetLatestForUser(ctx context.Context, tx *gorm.DB, userID string) (*domain.StoredAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.StoredAnalysis
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(1).
		Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
