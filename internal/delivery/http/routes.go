package http

import (
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Operational endpoints are not rate limited
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := router.Group("/")
	if cfg.RateLimit.PerIP > 0 {
		limited.Use(NewIPRateLimiter(cfg.RateLimit.PerIP, max(cfg.RateLimit.PerIP/10, 1)).Middleware())
	}
	limited.Use(TimeoutMiddleware(cfg.Server.RequestTimeout))

	// Fulfillment webhook
	limited.POST("/webhook", handler.Webhook)

	// API v1 routes
	v1 := limited.Group("/api/v1")
	{
		products := v1.Group("/products")
		{
			products.GET("/search", handler.SearchProducts)
		}

		catalog := v1.Group("/catalog", AdminTokenMiddleware(cfg.Server.AdminToken))
		{
			catalog.POST("/refresh", handler.RefreshCatalog)
		}
	}

	return router
}
