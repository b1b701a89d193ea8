package app

import (
	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/analysis/complete"
	"github.com/yungbote/persona-backend/internal/analysis/format"
	"github.com/yungbote/persona-backend/internal/analysis/pipeline"
	"github.com/yungbote/persona-backend/internal/analysis/prompt"
	"github.com/yungbote/persona-backend/internal/analysis/retry"
	"github.com/yungbote/persona-backend/internal/config"
	"github.com/yungbote/persona-backend/internal/observability"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

type Services struct {
	Formatter *format.Formatter
	Pipeline  *pipeline.Service
}

func wireServices(log *logger.Logger, cfg config.Config, repos Repos, clients Clients, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")
	formatter := format.New(cfg.QuestionBank)
	svc := pipeline.NewService(pipeline.Deps{
		Variants: analysis.DefaultVariants(cfg.OpenAI.Model, cfg.OpenAI.FallbackModel),
		Builder:  prompt.NewBuilder(cfg.QuestionBank, formatter),
		Gateway:  clients.Gateway,
		Policy: retry.Policy{
			MaxRetries:      cfg.Retry.MaxRetries,
			BackoffBase:     cfg.Retry.BackoffBase,
			AttemptTimeout:  cfg.Retry.AttemptTimeout,
			FallbackTimeout: cfg.Retry.FallbackTimeout,
		},
		Completer:        complete.New(complete.NewDefaultContent()),
		Store:            repos.Cached,
		Guard:            clients.Guard,
		Metrics:          metrics,
		Log:              log,
		Budget:           cfg.ExecutionBudget(),
		MinResponseChars: cfg.MinResponseChars,
		ConfigErr:        clients.GatewayErr,
	})
	return Services{Formatter: formatter, Pipeline: svc}
}
