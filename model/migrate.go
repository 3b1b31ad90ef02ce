package model

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the gateway owns and seeds the roles.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Role{},
		&User{},
		&BlockEntry{},
		&SecurityProfile{},
		&SecurityEvent{},
		&SecurityAlert{},
	); err != nil {
		return err
	}
	return SeedRoles(db)
}
