package database

import (
	"gorm.io/gorm"

	"exam-system/internal/models"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}
