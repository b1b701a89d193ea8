package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/persona-backend/internal/config"
	httpx "github.com/yungbote/persona-backend/internal/http"
	httpH "github.com/yungbote/persona-backend/internal/http/handlers"
	httpMW "github.com/yungbote/persona-backend/internal/http/middleware"
	"github.com/yungbote/persona-backend/internal/observability"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Analysis *httpH.AnalysisHandler
	Fetch    *httpH.FetchHandler
}

func wireHandlers(log *logger.Logger, services Services, repos Repos) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Analysis: httpH.NewAnalysisHandler(services.Pipeline, services.Formatter, log),
		Fetch:    httpH.NewFetchHandler(repos.Cached, log),
	}
}

func wireMiddleware(log *logger.Logger, cfg config.Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecret),
	}
}

func wireRouter(log *logger.Logger, cfg config.Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *gin.Engine {
	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return httpx.NewRouter(httpx.RouterConfig{
		Log:             log,
		ServiceName:     "persona-backend",
		AllowOrigin:     cfg.CORSAllowOrigin,
		Metrics:         metrics,
		AuthMiddleware:  middleware.Auth,
		AnalysisHandler: handlers.Analysis,
		FetchHandler:    handlers.Fetch,
		HealthHandler:   handlers.Health,
	})
}

func newHTTPServer(engine *gin.Engine, addr string, writeTimeout time.Duration) *http.Server {
	return (&httpx.Server{Engine: engine}).HTTPServer(addr, writeTimeout)
}
