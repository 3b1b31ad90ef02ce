package model

import "gorm.io/gorm"

// User is the account a SecurityProfile belongs to. Only the columns the gateway reads are mapped.
type User struct {
	gorm.Model
	Name     string `gorm:"type:varchar(191)" json:"name"`
	Email    string `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	Password string `gorm:"type:varchar(255)" json:"-"`
	RoleID   uint   `gorm:"index" json:"role_id"`
	Role     Role   `json:"role,omitempty"`
}
