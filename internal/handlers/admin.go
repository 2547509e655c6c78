package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/cleanup"
	"real-estate-catalog/internal/database"
	"real-estate-catalog/internal/models"
	"real-estate-catalog/internal/scheduler"
	"real-estate-catalog/internal/snapshot"
)

// AdminHandler serves catalog history and refresh control
type AdminHandler struct {
	store           *database.GormDB
	scheduler       *scheduler.Scheduler
	view            *catalog.View
	snapshotService *snapshot.Service
	cleanupService  *cleanup.Service
	retentionDays   int
	logger          *slog.Logger
}

// NewAdminHandler creates a new admin handler. Any collaborator may be nil;
// the routes that need it answer 503.
func NewAdminHandler(store *database.GormDB, sched *scheduler.Scheduler, view *catalog.View,
	snapshots *snapshot.Service, cleaner *cleanup.Service, retentionDays int, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:           store,
		scheduler:       sched,
		view:            view,
		snapshotService: snapshots,
		cleanupService:  cleaner,
		retentionDays:   retentionDays,
		logger:          logger,
	}
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not available (requires a snapshot database)"})
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return min(limit, 1000)
}

// GetStats returns snapshot store statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	if h.store == nil {
		unavailable(c, "statistics")
		return
	}
	db := h.store.DB().WithContext(c.Request.Context())
	stats := make(map[string]interface{})

	var activeCount, removedCount, snapshotCount, recentChanges int64
	counts := []struct {
		query *gorm.DB
		dest  *int64
	}{
		{db.Model(&models.TrackedProperty{}).Where("status = ?", models.TrackedStatusActive), &activeCount},
		{db.Model(&models.TrackedProperty{}).Where("status = ?", models.TrackedStatusRemoved), &removedCount},
		{db.Model(&models.PropertySnapshot{}), &snapshotCount},
		{db.Model(&models.PropertyChange{}).Where("detected_at >= ?", time.Now().UTC().AddDate(0, 0, -7)), &recentChanges},
	}
	for _, q := range counts {
		if err := q.query.Count(q.dest).Error; err != nil {
			h.logger.Error("failed to count stats", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	stats["properties"] = map[string]interface{}{
		"active":  activeCount,
		"removed": removedCount,
		"total":   activeCount + removedCount,
	}
	stats["snapshots"] = map[string]interface{}{
		"total": snapshotCount,
	}
	stats["changes"] = map[string]interface{}{
		"last_7_days": recentChanges,
	}

	if h.cleanupService != nil {
		deleteStats, err := h.cleanupService.GetDeleteStats(c.Request.Context(), h.retentionDays)
		if err != nil {
			h.logger.Warn("failed to get delete stats", "err", err)
		} else {
			stats["deletions"] = deleteStats
		}
	}

	c.JSON(http.StatusOK, stats)
}

// TriggerRefresh starts a catalog refresh in the background
func (h *AdminHandler) TriggerRefresh(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is not available"})
		return
	}

	h.logger.Info("manual catalog refresh requested")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := h.scheduler.RunNow(ctx); err != nil {
			if errors.Is(err, scheduler.ErrAlreadyRunning) {
				h.logger.Info("manual refresh skipped, a refresh is already running")
				return
			}
			h.logger.Error("manual catalog refresh failed", "err", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "catalog refresh started",
		"status":  "running",
	})
}

// GetRefreshStatus reports the view state, the last run and persisted refresh health
func (h *AdminHandler) GetRefreshStatus(c *gin.Context) {
	resp := gin.H{}
	if h.view != nil {
		resp["view"] = h.view.Status()
	}
	if h.scheduler != nil {
		resp["last_run"] = h.scheduler.LastRun()
	}
	if h.store != nil {
		state, err := h.store.LoadRefreshState()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["health"] = state
	}
	c.JSON(http.StatusOK, resp)
}

// RunCleanup purges expired snapshot history
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	if h.cleanupService == nil {
		unavailable(c, "cleanup")
		return
	}

	var req struct {
		RetentionDays    int   `json:"retention_days"`
		MaxDeletionCount int   `json:"max_deletion_count"`
		DryRun           *bool `json:"dry_run"` // defaults to true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := cleanup.DefaultCleanupConfig()
	cfg.RetentionDays = h.retentionDays
	if req.RetentionDays > 0 {
		cfg.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		cfg.MaxDeletionCount = req.MaxDeletionCount
	}
	cfg.DryRun = req.DryRun == nil || *req.DryRun

	h.logger.Info("running cleanup",
		"retention_days", cfg.RetentionDays,
		"max_deletion_count", cfg.MaxDeletionCount,
		"dry_run", cfg.DryRun)

	result, err := h.cleanupService.Run(c.Request.Context(), cfg)
	if err != nil {
		h.logger.Error("cleanup failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	if h.cleanupService == nil {
		unavailable(c, "cleanup")
		return
	}
	logs, err := h.cleanupService.GetRecentDeleteLogs(c.Request.Context(), queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetPropertyHistory returns snapshot history and changes for a property
func (h *AdminHandler) GetPropertyHistory(c *gin.Context) {
	if h.snapshotService == nil {
		unavailable(c, "snapshot history")
		return
	}
	propertyID := c.Param("id")
	limit := queryLimit(c, 30)

	snapshots, err := h.snapshotService.GetPropertyHistory(c.Request.Context(), propertyID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	changes, err := h.snapshotService.GetPropertyChanges(c.Request.Context(), propertyID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_id": propertyID,
		"count":       len(snapshots),
		"snapshots":   snapshots,
		"changes":     changes,
	})
}

// GetRecentChanges returns recent property changes, optionally filtered by ?type=
func (h *AdminHandler) GetRecentChanges(c *gin.Context) {
	if h.snapshotService == nil {
		unavailable(c, "snapshot history")
		return
	}
	changes, err := h.snapshotService.GetRecentChanges(c.Request.Context(), c.Query("type"), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(changes),
		"changes": changes,
	})
}
