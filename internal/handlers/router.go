// Package handlers exposes the catalog over HTTP for the browser front end.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/cleanup"
	"real-estate-catalog/internal/database"
	"real-estate-catalog/internal/ratelimit"
	"real-estate-catalog/internal/scheduler"
	"real-estate-catalog/internal/search"
	"real-estate-catalog/internal/snapshot"
)

// RouterDeps collects what the router serves. Catalog and RateLimiter are
// required; everything else is optional.
type RouterDeps struct {
	Catalog       CatalogService
	View          *catalog.View
	Store         *database.GormDB
	Scheduler     *scheduler.Scheduler
	Snapshots     *snapshot.Service
	Cleanup       *cleanup.Service
	Search        *search.SearchClient
	RateLimiter   *ratelimit.RateLimiter
	AllowOrigins  []string
	RetentionDays int
	LogRequests   bool
	Logger        *slog.Logger
}

// NewRouter builds the gin engine with every route registered
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.LogRequests {
		r.Use(requestLogger(logger))
	}
	if len(deps.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowOrigins,
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	catalogHandler := NewCatalogHandler(deps.Catalog, deps.View, logger)
	adminHandler := NewAdminHandler(deps.Store, deps.Scheduler, deps.View, deps.Snapshots, deps.Cleanup, deps.RetentionDays, logger)
	searchHandler := NewSearchHandler(deps.Search, logger)
	limit := deps.RateLimiter.Middleware(logger)

	r.GET("/health", healthCheck)

	api := r.Group("/api")
	{
		api.GET("/catalog", catalogHandler.GetCatalog)
		api.GET("/catalog/latest", catalogHandler.GetLatestCatalog)
		api.GET("/owners", catalogHandler.GetOwners)

		// Writes go to the backend and are rate limited
		api.POST("/properties", limit, catalogHandler.CreateProperty)
		api.POST("/property-images", limit, catalogHandler.CreatePropertyImage)
		api.POST("/owners", limit, catalogHandler.CreateOwner)

		api.GET("/ratelimit/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.RateLimiter.GetStats())
		})

		api.GET("/search", searchHandler.Search)

		api.GET("/properties/:id/history", adminHandler.GetPropertyHistory)
		api.GET("/changes/recent", adminHandler.GetRecentChanges)
	}

	admin := r.Group("/api/admin")
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.POST("/refresh", adminHandler.TriggerRefresh)
		admin.GET("/refresh/status", adminHandler.GetRefreshStatus)
		admin.POST("/cleanup/run", adminHandler.RunCleanup)
		admin.GET("/cleanup/logs", adminHandler.GetDeleteLogs)
	}

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP())
	}
}
