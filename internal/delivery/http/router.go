package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/delivery/http/middleware"
	"github.com/shcorya/distributed-workers/internal/usecase"
)

// RouterDeps holds everything the router needs.
type RouterDeps struct {
	SubmitUC        *usecase.SubmitJobUsecase
	GetJobUC        *usecase.GetJobUsecase
	Logger          *zap.Logger
	RateLimitPerMin int
	MaxBodyBytes    int64
	StreamInterval  time.Duration

	// HealthChecks are reported by GET /healthz, keyed by service name.
	HealthChecks map[string]Pinger
}

const defaultMaxBodyBytes = 1 << 20

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps *RouterDeps) *gin.Engine {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.NoCache())
	router.Use(middleware.Logger(deps.Logger))

	router.NoMethod(MethodNotAllowed)
	router.NoRoute(NotFound)

	// Operational endpoints (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	healthHandler := NewHealthHandler(deps.HealthChecks, deps.Logger)
	router.GET("/healthz", healthHandler.Health)

	jobs := router.Group("/")
	jobs.Use(middleware.RateLimiter(deps.RateLimitPerMin))
	{
		jobHandler := NewJobHandler(deps.SubmitUC, deps.GetJobUC, deps.Logger)
		jobs.POST("/", middleware.BodySizeLimit(maxBody), jobHandler.Submit)
		jobs.GET("/:id", jobHandler.GetByID)

		wsHandler := NewWebSocketHandler(deps.GetJobUC, deps.StreamInterval, deps.Logger)
		jobs.GET("/:id/stream", wsHandler.Stream)
	}

	return router
}
