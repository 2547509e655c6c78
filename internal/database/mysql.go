package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"real-estate-catalog/internal/config"
)

func mysqlDSN(c config.MySQLConfig) string {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, port, c.Database)
}

func mysqlDialector(c config.MySQLConfig) gorm.Dialector {
	return mysql.Open(mysqlDSN(c))
}
