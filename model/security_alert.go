package model

import (
	"time"

	"gorm.io/datatypes"
)

// Alert types.
const (
	AlertMultipleFailedLogins = "multiple_failed_logins"
	AlertAttackAutoBlock      = "attack_auto_block"
)

// AlertStatus is the review state of a SecurityAlert.
type AlertStatus string

const (
	AlertNew           AlertStatus = "new"
	AlertAcknowledged  AlertStatus = "acknowledged"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
)

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertNew:          {AlertAcknowledged, AlertResolved, AlertFalsePositive},
	AlertAcknowledged: {AlertResolved, AlertFalsePositive},
}

// CanTransition reports whether an alert may move from s to next.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	for _, allowed := range alertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsOpen reports whether the alert still needs attention.
func (s AlertStatus) IsOpen() bool {
	return s == AlertNew || s == AlertAcknowledged
}

// ValidAlertStatus reports whether s names a known status.
func ValidAlertStatus(s string) bool {
	switch AlertStatus(s) {
	case AlertNew, AlertAcknowledged, AlertResolved, AlertFalsePositive:
		return true
	}
	return false
}

// SecurityAlert is raised when a pattern of events crosses a threshold.
type SecurityAlert struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AlertType      string         `gorm:"type:varchar(64);index" json:"alert_type"`
	Severity       Severity       `gorm:"type:varchar(16);index" json:"severity"`
	Status         AlertStatus    `gorm:"type:varchar(16);index;not null" json:"status"`
	UserID         *uint          `gorm:"index" json:"user_id,omitempty"`
	IPAddress      string         `gorm:"column:ip_address;type:varchar(255);index" json:"ip_address"`
	Description    string         `gorm:"type:text" json:"description"`
	Details        datatypes.JSON `gorm:"type:json" json:"details"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	ResolvedByID   *uint          `json:"resolved_by_id,omitempty"`
	ResolutionNote string         `gorm:"type:text" json:"resolution_note"`
}
