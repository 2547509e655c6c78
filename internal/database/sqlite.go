package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"real-estate-catalog/internal/config"
)

func sqliteDialector(c config.SQLiteConfig) gorm.Dialector {
	path := c.Path
	if path == "" {
		path = "catalog.db"
	}
	return sqlite.Open(path)
}
