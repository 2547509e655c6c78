// Package snapshot keeps a daily history of the catalog and the changes
// between consecutive days. The history is never read back into a catalog.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/database"
	"real-estate-catalog/internal/models"
)

// Service handles property snapshot operations
type Service struct {
	store  *database.GormDB
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new snapshot service
func NewService(store *database.GormDB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		db:     store.DB(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordResult summarizes one RecordCatalog run.
type RecordResult struct {
	SnapshotDate time.Time `json:"snapshot_date"`
	Snapshots    int       `json:"snapshots"`
	Changes      int       `json:"changes"`
	New          []string  `json:"new,omitempty"`
	Removed      []string  `json:"removed,omitempty"`
}

// RecordCatalog stores today's snapshot of every catalog property and the
// changes against each property's previous snapshot. Running it again on
// the same day replaces that day's snapshots and changes.
func (s *Service) RecordCatalog(ctx context.Context, cat *catalog.Catalog) (*RecordResult, error) {
	now := s.now()
	day := now.Truncate(24 * time.Hour)

	newIDs, removedIDs, err := s.store.SyncTracked(cat.Properties, now)
	if err != nil {
		return nil, fmt.Errorf("sync tracked properties: %w", err)
	}
	isNew := make(map[string]bool, len(newIDs))
	for _, id := range newIDs {
		isNew[id] = true
	}

	result := &RecordResult{SnapshotDate: day, New: newIDs, Removed: removedIDs}
	seen := make(map[string]bool, len(cat.Properties))
	db := s.db.WithContext(ctx)

	for i := range cat.Properties {
		p := &cat.Properties[i]
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		_, imagesFailed := cat.Failures[p.ID]
		n, err := s.recordProperty(db, p, len(cat.Images.For(p.ID)), imagesFailed, isNew[p.ID], day, now)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("snapshot failed", "property_id", p.ID, "err", err)
			continue
		}
		result.Snapshots++
		result.Changes += n
	}

	for _, id := range removedIDs {
		change := models.PropertyChange{
			PropertyID: id,
			ChangeType: models.ChangeTypeRemoved,
			NewValue:   "Property no longer in catalog",
			DetectedAt: now,
		}
		if err := db.Create(&change).Error; err != nil {
			s.logger.Warn("failed to record removal", "property_id", id, "err", err)
			continue
		}
		result.Changes++
	}

	s.logger.Info("catalog snapshot recorded",
		"date", day.Format(time.DateOnly),
		"snapshots", result.Snapshots,
		"changes", result.Changes,
		"new", len(result.New),
		"removed", len(result.Removed))
	return result, nil
}

// recordProperty upserts one snapshot and returns the number of changes saved.
// When the image fetch failed the previous image count is carried over.
func (s *Service) recordProperty(db *gorm.DB, p *models.Property, imageCount int, imagesFailed, isNew bool, day, now time.Time) (int, error) {
	var changes []models.PropertyChange
	err := db.Transaction(func(tx *gorm.DB) error {
		var last models.PropertySnapshot
		err := tx.Where("property_id = ? AND snapshot_at < ?", p.ID, day).
			Order("snapshot_at DESC").
			First(&last).Error
		hasLast := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if imagesFailed {
			imageCount = last.ImageCount
		}

		switch {
		case isNew, !hasLast:
			changes = []models.PropertyChange{{
				PropertyID: p.ID,
				ChangeType: models.ChangeTypeNew,
				NewValue:   p.Name,
				DetectedAt: now,
			}}
		default:
			changes = DetectChanges(&last, p, imageCount, !imagesFailed, now)
		}

		snapshot := models.PropertySnapshot{
			PropertyID: p.ID,
			SnapshotAt: day,
			Name:       p.Name,
			Address:    p.Address,
			Price:      p.Price,
			Year:       p.Year,
			IDOwner:    p.IDOwner,
			ImageCount: imageCount,
			HasChanged: len(changes) > 0,
		}
		if len(changes) > 0 {
			snapshot.ChangeNote = fmt.Sprintf("%d changes detected", len(changes))
		}

		var existing models.PropertySnapshot
		err = tx.Where("property_id = ? AND snapshot_at = ?", p.ID, day).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&snapshot).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			snapshot.ID = existing.ID
			snapshot.CreatedAt = existing.CreatedAt
			if err := tx.Save(&snapshot).Error; err != nil {
				return err
			}
			if err := tx.Where("snapshot_id = ?", existing.ID).Delete(&models.PropertyChange{}).Error; err != nil {
				return err
			}
		}

		if len(changes) == 0 {
			return nil
		}
		for i := range changes {
			changes[i].SnapshotID = snapshot.ID
		}
		return tx.Create(&changes).Error
	})
	if err != nil {
		return 0, err
	}
	if len(changes) > 0 {
		s.logger.Debug("changes detected", "property_id", p.ID, "count", len(changes))
	}
	return len(changes), nil
}

// DetectChanges compares a property with its previous snapshot.
// The image count is only compared when compareImages is set.
func DetectChanges(last *models.PropertySnapshot, p *models.Property, imageCount int, compareImages bool, at time.Time) []models.PropertyChange {
	changes := []models.PropertyChange{}
	add := func(changeType, oldVal, newVal string, magnitude *float64) {
		changes = append(changes, models.PropertyChange{
			PropertyID:      p.ID,
			ChangeType:      changeType,
			OldValue:        oldVal,
			NewValue:        newVal,
			ChangeMagnitude: magnitude,
			DetectedAt:      at,
		})
	}

	if p.Price != last.Price {
		magnitude := p.Price - last.Price
		add(models.ChangeTypePrice, formatPrice(last.Price), formatPrice(p.Price), &magnitude)
	}
	if p.Name != last.Name {
		add(models.ChangeTypeName, last.Name, p.Name, nil)
	}
	if p.Address != last.Address {
		add(models.ChangeTypeAddress, last.Address, p.Address, nil)
	}
	if p.IDOwner != last.IDOwner {
		add(models.ChangeTypeOwner, last.IDOwner, p.IDOwner, nil)
	}
	if compareImages && imageCount != last.ImageCount {
		magnitude := float64(imageCount - last.ImageCount)
		add(models.ChangeTypeImageCount, strconv.Itoa(last.ImageCount), strconv.Itoa(imageCount), &magnitude)
	}
	return changes
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// GetPropertyHistory retrieves snapshot history for a property, newest first
func (s *Service) GetPropertyHistory(ctx context.Context, propertyID string, limit int) ([]models.PropertySnapshot, error) {
	snapshots := []models.PropertySnapshot{}
	query := s.db.WithContext(ctx).Where("property_id = ?", propertyID).Order("snapshot_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

// GetPropertyChanges retrieves the change log of one property, newest first
func (s *Service) GetPropertyChanges(ctx context.Context, propertyID string, limit int) ([]models.PropertyChange, error) {
	changes := []models.PropertyChange{}
	query := s.db.WithContext(ctx).Where("property_id = ?", propertyID).Order("detected_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}

// GetRecentChanges retrieves recent property changes, optionally of one type
func (s *Service) GetRecentChanges(ctx context.Context, changeType string, limit int) ([]models.PropertyChange, error) {
	changes := []models.PropertyChange{}
	query := s.db.WithContext(ctx).Order("detected_at DESC, id DESC")
	if changeType != "" {
		query = query.Where("change_type = ?", changeType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}
