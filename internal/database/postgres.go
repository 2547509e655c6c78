package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"real-estate-catalog/internal/config"
)

func postgresDSN(c config.PostgresConfig) string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, port, c.User, c.Password, c.Database, sslmode)
}

func postgresDialector(c config.PostgresConfig) gorm.Dialector {
	return postgres.Open(postgresDSN(c))
}
