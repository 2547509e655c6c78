package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/models"
)

// SearchDeleter removes documents from the search index.
type SearchDeleter interface {
	DeleteProperties(ctx context.Context, ids []string) error
}

// Service purges snapshot history past its retention period
type Service struct {
	db     *gorm.DB
	search SearchDeleter
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new cleanup service. search may be nil.
func NewService(db *gorm.DB, search SearchDeleter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		search: search,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CleanupConfig holds configuration for cleanup operations
type CleanupConfig struct {
	RetentionDays    int  // days of history kept, and days a removed property is kept
	MaxDeletionCount int  // abort when more properties than this would be purged
	DryRun           bool // only log what would be deleted
	DeleteFromSearch bool
}

// DefaultCleanupConfig returns default configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		RetentionDays:    90,
		MaxDeletionCount: 10000,
		DeleteFromSearch: true,
	}
}

// ConfigFromSettings builds a CleanupConfig from the snapshots section
func ConfigFromSettings(s config.SnapshotsConfig) CleanupConfig {
	c := DefaultCleanupConfig()
	if s.RetentionDays > 0 {
		c.RetentionDays = s.RetentionDays
	}
	if s.MaxDeletionCount > 0 {
		c.MaxDeletionCount = s.MaxDeletionCount
	}
	c.DryRun = s.DryRun
	return c
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	TargetCount       int       `json:"target_count"`
	DeletedCount      int       `json:"deleted_count"`
	PrunedSnapshots   int64     `json:"pruned_snapshots"`
	PrunedChanges     int64     `json:"pruned_changes"`
	ErrorCount        int       `json:"error_count"`
	DryRun            bool      `json:"dry_run"`
	ExecutedAt        time.Time `json:"executed_at"`
	DeletedProperties []string  `json:"deleted_properties"`
	Errors            []string  `json:"errors,omitempty"`
}

func (s *Service) cutoff(retentionDays int) time.Time {
	return s.now().AddDate(0, 0, -retentionDays)
}

// FindExpiredProperties finds properties removed from the catalog more than
// retentionDays ago
func (s *Service) FindExpiredProperties(ctx context.Context, retentionDays int) ([]models.TrackedProperty, error) {
	var properties []models.TrackedProperty
	cutoff := s.cutoff(retentionDays)

	err := s.db.WithContext(ctx).
		Where("status = ? AND removed_at < ?", models.TrackedStatusRemoved, cutoff).
		Order("removed_at ASC").
		Find(&properties).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired properties: %w", err)
	}
	return properties, nil
}

// Run purges expired removed properties with their whole history, then
// prunes snapshots and changes older than the retention period.
func (s *Service) Run(ctx context.Context, cfg CleanupConfig) (*CleanupResult, error) {
	result := &CleanupResult{
		DryRun:            cfg.DryRun,
		ExecutedAt:        s.now(),
		DeletedProperties: []string{},
	}

	expired, err := s.FindExpiredProperties(ctx, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(expired)

	if result.TargetCount > cfg.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d properties exceed max deletion limit of %d",
			result.TargetCount, cfg.MaxDeletionCount)
	}

	for _, prop := range expired {
		if cfg.DryRun {
			s.logger.Info("[DRY-RUN] would purge property", "property_id", prop.ID, "name", prop.Name)
			result.DeletedProperties = append(result.DeletedProperties, prop.ID)
			result.DeletedCount++
			continue
		}
		if err := s.purgeProperty(ctx, prop); err != nil {
			msg := fmt.Sprintf("failed to purge property %s: %v", prop.ID, err)
			s.logger.Error("purge failed", "property_id", prop.ID, "err", err)
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}
		result.DeletedProperties = append(result.DeletedProperties, prop.ID)
		result.DeletedCount++
	}

	if !cfg.DryRun && cfg.DeleteFromSearch && s.search != nil && len(result.DeletedProperties) > 0 {
		if err := s.search.DeleteProperties(ctx, result.DeletedProperties); err != nil {
			s.logger.Warn("failed to delete purged properties from search", "err", err)
			result.Errors = append(result.Errors, err.Error())
			result.ErrorCount++
		}
	}

	if err := s.prune(ctx, cfg, result); err != nil {
		return nil, err
	}

	s.logger.Info("cleanup completed",
		"deleted", result.DeletedCount,
		"target", result.TargetCount,
		"pruned_snapshots", result.PrunedSnapshots,
		"pruned_changes", result.PrunedChanges,
		"errors", result.ErrorCount,
		"dry_run", cfg.DryRun)
	return result, nil
}

func (s *Service) purgeProperty(ctx context.Context, prop models.TrackedProperty) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snapshots int64
		if err := tx.Model(&models.PropertySnapshot{}).Where("property_id = ?", prop.ID).Count(&snapshots).Error; err != nil {
			return err
		}

		deleteLog := models.DeleteLog{
			PropertyID:    prop.ID,
			Name:          prop.Name,
			SnapshotCount: int(snapshots),
			RemovedAt:     prop.RemovedAt,
			DeletedAt:     s.now(),
			Reason:        models.DeleteReasonExpired,
		}
		if err := tx.Create(&deleteLog).Error; err != nil {
			return fmt.Errorf("create delete log: %w", err)
		}
		if err := tx.Where("property_id = ?", prop.ID).Delete(&models.PropertyChange{}).Error; err != nil {
			return err
		}
		if err := tx.Where("property_id = ?", prop.ID).Delete(&models.PropertySnapshot{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.TrackedProperty{}, "id = ?", prop.ID).Error
	})
}

// prune deletes history rows older than the retention period.
func (s *Service) prune(ctx context.Context, cfg CleanupConfig, result *CleanupResult) error {
	cutoff := s.cutoff(cfg.RetentionDays)
	db := s.db.WithContext(ctx)

	if cfg.DryRun {
		if err := db.Model(&models.PropertySnapshot{}).Where("snapshot_at < ?", cutoff).Count(&result.PrunedSnapshots).Error; err != nil {
			return err
		}
		return db.Model(&models.PropertyChange{}).Where("detected_at < ?", cutoff).Count(&result.PrunedChanges).Error
	}

	res := db.Where("snapshot_at < ?", cutoff).Delete(&models.PropertySnapshot{})
	if res.Error != nil {
		return fmt.Errorf("prune snapshots: %w", res.Error)
	}
	result.PrunedSnapshots = res.RowsAffected

	res = db.Where("detected_at < ?", cutoff).Delete(&models.PropertyChange{})
	if res.Error != nil {
		return fmt.Errorf("prune changes: %w", res.Error)
	}
	result.PrunedChanges = res.RowsAffected
	return nil
}

// DeleteStats summarizes purged and pending properties
type DeleteStats struct {
	TotalDeleted      int64            `json:"total_deleted"`
	ByReason          map[string]int64 `json:"by_reason"`
	DeletedLast30Days int64            `json:"deleted_last_30_days"`
	CurrentlyRemoved  int64            `json:"currently_removed"`
	ReadyForDeletion  int              `json:"expired_ready_for_deletion"`
}

// GetDeleteStats returns statistics about purged properties
func (s *Service) GetDeleteStats(ctx context.Context, retentionDays int) (*DeleteStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DeleteStats{ByReason: map[string]int64{}}

	if err := db.Model(&models.DeleteLog{}).Count(&stats.TotalDeleted).Error; err != nil {
		return nil, err
	}

	var reasonCounts []struct {
		Reason string
		Count  int64
	}
	if err := db.Model(&models.DeleteLog{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&reasonCounts).Error; err != nil {
		return nil, err
	}
	for _, rc := range reasonCounts {
		stats.ByReason[rc.Reason] = rc.Count
	}

	if err := db.Model(&models.DeleteLog{}).
		Where("deleted_at >= ?", s.now().AddDate(0, 0, -30)).
		Count(&stats.DeletedLast30Days).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.TrackedProperty{}).
		Where("status = ?", models.TrackedStatusRemoved).
		Count(&stats.CurrentlyRemoved).Error; err != nil {
		return nil, err
	}

	expired, err := s.FindExpiredProperties(ctx, retentionDays)
	if err != nil {
		return nil, err
	}
	stats.ReadyForDeletion = len(expired)

	return stats, nil
}

// GetRecentDeleteLogs returns recent delete log entries
func (s *Service) GetRecentDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error) {
	logs := []models.DeleteLog{}
	err := s.db.WithContext(ctx).Order("deleted_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
