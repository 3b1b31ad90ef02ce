package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventType classifies a SecurityEvent.
type EventType string

const (
	EventAuthFailure        EventType = "auth_failure"
	EventAuthSuccess        EventType = "auth_success"
	EventIPBlocked          EventType = "ip_blocked"
	EventIPUnblocked        EventType = "ip_unblocked"
	EventAttackDetected     EventType = "attack_detected"
	EventRateLimited        EventType = "rate_limited"
	EventAccountLocked      EventType = "account_locked"
	EventAccountUnlocked    EventType = "account_unlocked"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventOther              EventType = "other"
)

var eventTypes = map[EventType]bool{
	EventAuthFailure: true, EventAuthSuccess: true, EventIPBlocked: true, EventIPUnblocked: true,
	EventAttackDetected: true, EventRateLimited: true, EventAccountLocked: true,
	EventAccountUnlocked: true, EventSuspiciousActivity: true, EventOther: true,
}

// ParseEventType maps unknown values to EventOther.
func ParseEventType(s string) EventType {
	if t := EventType(s); eventTypes[t] {
		return t
	}
	return EventOther
}

// ValidEventType reports whether s names a known event type.
func ValidEventType(s string) bool {
	return eventTypes[EventType(s)]
}

// Severity is shared by events and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s names a known severity.
func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SecurityEvent is an append-only audit record.
type SecurityEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EventType EventType      `gorm:"column:event_type;type:varchar(32);index:idx_event_type_time" json:"event_type"`
	Severity  Severity       `gorm:"type:varchar(16);index" json:"severity"`
	UserID    *uint          `gorm:"index" json:"user_id,omitempty"`
	IPAddress string         `gorm:"column:ip_address;type:varchar(255);index:idx_event_ip_time" json:"ip_address"`
	UserAgent string         `gorm:"type:varchar(512)" json:"user_agent"`
	Location  string         `gorm:"type:varchar(255)" json:"location"`
	Details   datatypes.JSON `gorm:"type:json" json:"details"`
	Timestamp time.Time      `gorm:"index:idx_event_type_time;index:idx_event_ip_time;not null" json:"timestamp"`
}
