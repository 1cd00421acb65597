package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// Slack entry points
	slackGroup := router.Group("/slack")
	{
		slackGroup.POST("/events", handler.SlackEvents)
		slackGroup.POST("/commands", handler.SlackCommands)
	}

	return router
}
