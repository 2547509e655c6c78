// Package database opens the snapshot store and keeps track of which catalog
// properties it has seen.
package database

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/models"
)

// ErrDisabled is returned by Open when no database type is configured.
var ErrDisabled = errors.New("snapshot database disabled")

type GormDB struct {
	db *gorm.DB
}

// Open connects to the configured database and checks the connection.
func Open(cfg config.DatabaseConfig, log *slog.Logger) (*GormDB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "":
		return nil, ErrDisabled
	case "mysql":
		dialector = mysqlDialector(cfg.MySQL)
	case "postgres":
		dialector = postgresDialector(cfg.Postgres)
	case "sqlite":
		dialector = sqliteDialector(cfg.SQLite)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(log),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s database: %w", cfg.Type, err)
	}
	if cfg.Type == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.TrackedProperty{},
		&models.PropertySnapshot{},
		&models.PropertyChange{},
		&models.DeleteLog{},
		&models.RefreshState{},
	)
}

// SyncTracked records the properties of a freshly loaded catalog.
// It returns the IDs seen for the first time (or again after a removal), in
// catalog order, and the sorted IDs of active properties missing from it,
// which are marked removed.
func (gdb *GormDB) SyncTracked(properties []models.Property, at time.Time) (newIDs, removedIDs []string, err error) {
	err = gdb.db.Transaction(func(tx *gorm.DB) error {
		var tracked []models.TrackedProperty
		if err := tx.Find(&tracked).Error; err != nil {
			return err
		}
		trackedMap := make(map[string]*models.TrackedProperty, len(tracked))
		for i := range tracked {
			trackedMap[tracked[i].ID] = &tracked[i]
		}

		seen := make(map[string]bool, len(properties))
		for _, p := range properties {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true

			existing, ok := trackedMap[p.ID]
			if !ok {
				rec := models.TrackedProperty{
					ID:        p.ID,
					Name:      p.Name,
					Status:    models.TrackedStatusActive,
					FirstSeen: at,
					LastSeen:  at,
				}
				if err := tx.Create(&rec).Error; err != nil {
					return err
				}
				newIDs = append(newIDs, p.ID)
				continue
			}

			if existing.Status == models.TrackedStatusRemoved {
				newIDs = append(newIDs, p.ID)
			}
			if err := tx.Model(&models.TrackedProperty{}).
				Where("id = ?", p.ID).
				Updates(map[string]interface{}{
					"name":       p.Name,
					"status":     models.TrackedStatusActive,
					"last_seen":  at,
					"removed_at": nil,
				}).Error; err != nil {
				return err
			}
		}

		for id, rec := range trackedMap {
			if !seen[id] && rec.Status == models.TrackedStatusActive {
				removedIDs = append(removedIDs, id)
			}
		}
		sort.Strings(removedIDs)
		if len(removedIDs) == 0 {
			return nil
		}
		return tx.Model(&models.TrackedProperty{}).
			Where("id IN ?", removedIDs).
			Updates(map[string]interface{}{
				"status":     models.TrackedStatusRemoved,
				"removed_at": at,
			}).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return newIDs, removedIDs, nil
}

// GetTrackedProperty retrieves a tracked property by ID
func (gdb *GormDB) GetTrackedProperty(id string) (*models.TrackedProperty, error) {
	var rec models.TrackedProperty
	if err := gdb.db.Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadRefreshState returns the refresh health row, creating it on first use.
func (gdb *GormDB) LoadRefreshState() (*models.RefreshState, error) {
	state := models.RefreshState{ID: 1}
	if err := gdb.db.FirstOrCreate(&state, models.RefreshState{ID: 1}).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveRefreshState persists the refresh health row.
func (gdb *GormDB) SaveRefreshState(state *models.RefreshState) error {
	state.ID = 1
	return gdb.db.Save(state).Error
}

// gormLogger routes gorm's SQL logging through slog at debug level.
type gormLogger struct {
	log *slog.Logger
}

func (l gormLogger) Printf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...), "component", "gorm")
}

func newGormLogger(log *slog.Logger) logger.Interface {
	if log == nil {
		log = slog.Default()
	}
	return logger.New(gormLogger{log: log}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
