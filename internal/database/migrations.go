package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/storefront/internal/models"
)

// AutoMigrate creates or updates the tables used by the SQL token store and cache.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	return db.AutoMigrate(
		&models.PasswordResetToken{},
		&models.CacheEntry{},
	)
}
