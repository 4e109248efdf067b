package repository

import "gorm.io/gorm"

// AutoMigrate creates the three engine tables plus workorders. Production
// deployments run real migrations; this covers local sqlite bring-up and
// tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&workorderModel{},
		&reportModel{},
		&schedulerSettingsModel{},
		&allocationLogModel{},
	)
}
