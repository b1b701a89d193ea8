package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/persona-backend/internal/config"
	"github.com/yungbote/persona-backend/internal/data/cache"
	repo "github.com/yungbote/persona-backend/internal/data/repos/analysis"
	"github.com/yungbote/persona-backend/internal/observability"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

type Repos struct {
	Analysis  repo.AnalysisRepo
	Responses repo.ResponseRepo
	Store     *repo.Store
	// Cached fronts Store for the polling endpoints.
	Cached *cache.Store
}

func wireRepos(db *gorm.DB, log *logger.Logger, cfg config.Config, metrics *observability.Metrics) Repos {
	log.Info("Wiring repos...")
	analyses := repo.NewAnalysisRepo(db, log)
	responses := repo.NewResponseRepo(db, log)
	store := repo.NewStore(db, analyses, responses, cfg.PersistTimeout, log)
	return Repos{
		Analysis:  analyses,
		Responses: responses,
		Store:     store,
		Cached:    cache.NewStore(store, cfg.CacheSize, cfg.CacheTTL, metrics, log),
	}
}
