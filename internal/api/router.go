package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tonalworks/sonata-api/internal/api/handlers"
	apimiddleware "github.com/tonalworks/sonata-api/internal/api/middleware"
	"github.com/tonalworks/sonata-api/internal/config"
	"github.com/tonalworks/sonata-api/internal/enhance"
	"github.com/tonalworks/sonata-api/internal/metrics"
)

// SetupRouter wires middleware and routes. enhancer and cw may be nil;
// the analysis endpoint degrades gracefully without them.
func SetupRouter(cfg *config.Config, enhancer enhance.Enhancer, cw *metrics.Client) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking(cw))

	// CORS middleware
	router.Use(apimiddleware.CORS())

	// Health check
	healthHandler := handlers.NewHealthHandler(cfg)
	router.GET("/health", healthHandler.HealthCheck)

	// API routes v1
	v1 := router.Group("/api/v1")
	if cfg.IsGatewayMode() {
		v1.Use(apimiddleware.GatewayAuth())
	}
	{
		analysisHandler := handlers.NewAnalysisHandler(cfg, enhancer, cw)
		v1.POST("/analysis", analysisHandler.Analyze)
	}

	return router
}
