package api

import (
	"github.com/gin-gonic/gin"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/config"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/tracing"
)

// NewRouter creates and configures the API router. m and tracer are optional.
func NewRouter(cfg *config.Config, service Service, m *metrics.Metrics, tracer *tracing.TracingService) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logging.GetLogger()))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(SecurityHeadersMiddleware())
	if tracer != nil {
		router.Use(tracer.TracingMiddleware())
	}
	if m != nil {
		router.Use(m.PrometheusMiddleware())
	}

	handler := NewHandler(service)

	// Health check and metrics (no auth required)
	router.GET("/health", handler.Health)
	if m != nil && cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg.Auth))
	{
		v1.POST("/orchestrate", handler.Orchestrate)
		v1.POST("/analyze", handler.Analyze)
		v1.GET("/capabilities", handler.Capabilities)
		v1.GET("/stats", handler.Stats)

		cache := v1.Group("/cache")
		{
			cache.POST("/invalidate", handler.InvalidateCache)
			cache.DELETE("", handler.ClearCache)
		}

		v1.POST("/breakers/reset", handler.ResetBreakers)
	}

	// Catch-all route for undefined endpoints
	router.NoRoute(func(c *gin.Context) {
		NotFoundResponse(c, "Endpoint not found")
	})

	return router
}
