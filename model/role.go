package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Role names seeded on migrate. Only RoleAdmin may use the security administration surface.
const (
	RoleAdmin   = "Admin"
	RoleStaff   = "Staff"
	RoleStudent = "Student"
)

type Role struct {
	gorm.Model
	Name string `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
}

// SeedRoles creates the built-in roles that are missing. It is safe to run repeatedly.
func SeedRoles(db *gorm.DB) error {
	for _, name := range []string{RoleAdmin, RoleStaff, RoleStudent} {
		role := Role{Name: name}
		if err := db.Where(Role{Name: name}).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("failed to seed role %s: %w", name, err)
		}
	}
	return nil
}
