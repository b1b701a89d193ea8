package analysis

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

// ResponseRepo writes the audit copy of submitted answers. Nothing in the
// service reads them back.
type ResponseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*domain.RawResponseRecord) error
	CountByAssessmentID(ctx context.Context, tx *gorm.DB, assessmentID string) (int64, error)
}

type responseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseRepo(db *gorm.DB, baseLog *logger.Logger) ResponseRepo {
	return &responseRepo{db: db, log: baseLog.With("repo", "ResponseRepo")}
}

func (r *responseRepo) Create(ctx context.Context, tx *gorm.DB, rows []*domain.RawResponseRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).CreateInBatches(rows, 100).Error
}

func (r *responseRepo) CountByAssessmentID(ctx context.Context, tx *gorm.DB, assessmentID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&domain.RawResponseRecord{}).
		Where("assessment_id = ?", assessmentID).
		Count(&n).Error
	return n, err
}
