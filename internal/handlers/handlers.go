package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"discord-insight-go/internal/cache"
	"discord-insight-go/internal/config"
	"discord-insight-go/internal/importer"
	"discord-insight-go/internal/metrics"
	"discord-insight-go/internal/query"
	"discord-insight-go/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	queries   *query.Queries
	cache     *cache.Cache
	importer  *importer.Importer
	scheduler *scheduler.Scheduler
	config    *config.Config
	metrics   *metrics.Metrics
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, q *query.Queries, c *cache.Cache, imp *importer.Importer, s *scheduler.Scheduler, cfg *config.Config, m *metrics.Metrics) *Handlers {
	return &Handlers{db: db, queries: q, cache: c, importer: imp, scheduler: s, config: cfg, metrics: m}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	api.Use(h.observeDuration())
	{
		// Servers and activity
		api.GET("/servers", h.GetServers)
		api.GET("/servers/:id/summary", h.GetServerSummary)
		api.GET("/servers/:id/top-users", h.GetTopUsers)
		api.GET("/servers/:id/top-channels", h.GetTopChannels)
		api.GET("/servers/:id/health", h.GetServerHealth)
		api.GET("/servers/:id/channels/:channel_id/history", h.GetChannelHistory)

		// Users
		api.GET("/users/across-servers", h.GetUsersAcrossServers)
		api.GET("/users/find", h.FindUsers)
		api.GET("/users/:id/messages", h.GetUserMessages)

		// Message search
		api.GET("/search", h.SearchMessages)

		// Import control
		api.POST("/import/run", h.RunImport)

		// Cache control
		api.POST("/cache/invalidate", h.InvalidateCache)

		// Scheduler control
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// observeDuration feeds the query duration histogram from every API request.
func (h *Handlers) observeDuration() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if h.metrics != nil {
			h.metrics.QueryDuration.Observe(time.Since(start).Seconds())
		}
	}
}
