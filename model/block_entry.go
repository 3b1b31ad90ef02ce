package model

import "time"

// BlockEntry records a blocked client IP. Entries are never hard-deleted; unblocking clears
// IsPermanent and ExpiresAt so the row stays as history.
type BlockEntry struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	IPAddress   string     `gorm:"column:ip_address;type:varchar(255);uniqueIndex;not null" json:"ip_address"`
	Reason      string     `gorm:"type:text" json:"reason"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at"`
	IsPermanent bool       `gorm:"not null;default:false" json:"is_permanent"`
	CreatedByID *uint      `gorm:"index" json:"created_by_id,omitempty"`
}

// IsActive reports whether the entry blocks its IP at now.
func (b BlockEntry) IsActive(now time.Time) bool {
	if b.IsPermanent {
		return true
	}
	return b.ExpiresAt != nil && b.ExpiresAt.After(now)
}

// RemainingAt returns how long a temporary block still holds at now. Permanent and inactive
// entries return 0.
func (b BlockEntry) RemainingAt(now time.Time) time.Duration {
	if b.IsPermanent || b.ExpiresAt == nil {
		return 0
	}
	if d := b.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
