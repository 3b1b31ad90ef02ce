package model

import "time"

// SecurityProfile holds the lockout state of one account.
// AccountLocked with a nil LockedUntil is a permanent lock that only an administrator lifts.
type SecurityProfile struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	FailedAttempts int        `gorm:"not null;default:0" json:"failed_login_attempts"`
	AccountLocked  bool       `gorm:"not null;default:false" json:"account_locked"`
	LockReason     string     `gorm:"type:varchar(255)" json:"lock_reason"`
	LockedUntil    *time.Time `json:"locked_until"`
	LastLogin      *time.Time `json:"last_login"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LockExpired reports whether a timed lock has run out at now and should be lifted.
func (p SecurityProfile) LockExpired(now time.Time) bool {
	return p.AccountLocked && p.LockedUntil != nil && !p.LockedUntil.After(now)
}

// IsLockedAt reports whether logins are refused at now.
func (p SecurityProfile) IsLockedAt(now time.Time) bool {
	return p.AccountLocked && !p.LockExpired(now)
}
