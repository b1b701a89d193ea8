package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/persona-backend/internal/http/handlers"
	httpMW "github.com/yungbote/persona-backend/internal/http/middleware"
	"github.com/yungbote/persona-backend/internal/observability"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowOrigin    string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	AnalysisHandler *httpH.AnalysisHandler
	FetchHandler    *httpH.FetchHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.AllowOrigin))
	if cfg.AuthMiddleware != nil {
		r.Use(cfg.AuthMiddleware.OptionalAuth())
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Analysis functions
	if cfg.AnalysisHandler != nil {
		fn := r.Group("/functions/v1")
		fn.POST("/:variant", cfg.AnalysisHandler.Analyze)
		fn.OPTIONS("/:variant", cfg.AnalysisHandler.Preflight)
	}

	api := r.Group("/api")
	{
		if cfg.FetchHandler != nil {
			api.GET("/analyses/:id", cfg.FetchHandler.ByID)
			api.GET("/assessments/:assessmentId/analysis", cfg.FetchHandler.ByAssessment)
			api.GET("/users/:userId/analyses/latest", cfg.FetchHandler.LatestForUser)
		}
	}

	return r
}
