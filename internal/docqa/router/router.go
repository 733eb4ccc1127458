// Package router provides docqa HTTP routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/metrics"
)

// New creates a gin engine with the docqa middleware chain and routes.
// A nil m disables request metrics and the /metrics endpoint.
func New(h *handler.DocQAHandler, m *metrics.DocQAMetrics) *gin.Engine {
	engine := gin.New()
	engine.Use(Recovery(), RequestID(), Logger(HealthPath, MetricsPath))
	if m != nil {
		engine.Use(Metrics(m, HealthPath, MetricsPath))
		engine.GET(MetricsPath, MetricsHandler(m))
	}
	Register(engine, h)
	return engine
}

// Register registers the docqa routes.
func Register(engine *gin.Engine, h *handler.DocQAHandler) {
	engine.GET(HealthPath, h.Health)

	v1 := engine.Group("/v1")
	{
		docqa := v1.Group("/docqa")
		{
			docqa.POST("/reload", h.Reload)
			docqa.POST("/ask", h.Ask)
			docqa.GET("/stats", h.Stats)
			docqa.DELETE("/history/:user_id", h.ClearHistory)
			docqa.POST("/documents", h.Upload)
		}
	}

	logger.Info("HTTP routes registered")
}
