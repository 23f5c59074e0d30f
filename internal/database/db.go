package database

import (
	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"campuseats/internal/models"
)

// Open connects to the configured database. Supported drivers are
// "sqlite3" and "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.LogMode(false)
	return db, nil
}

// Migrate creates the order fulfillment schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.StatusChange{},
	).Error
}
