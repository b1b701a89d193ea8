package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/persona-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.StoredAnalysis{},
		&domain.RawResponseRecord{},
	)
}

// EnsureAnalysisIndexes adds the composite index behind the latest-for-user
// lookup. Postgres only.
func EnsureAnalysisIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_personality_analysis_user_created
		ON personality_analysis(user_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_personality_analysis_user_created: %w", err)
	}
	return nil
}

func (s *Service) Migrate() error {
	if err := AutoMigrateAll(s.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if s.driver == DriverPostgres {
		return EnsureAnalysisIndexes(s.db)
	}
	return nil
}
