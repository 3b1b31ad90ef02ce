package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestParseEventType(t *testing.T) {
	assert.Equal(t, EventAttackDetected, ParseEventType("attack_detected"))
	assert.Equal(t, EventOther, ParseEventType("something_else"))
	assert.True(t, ValidEventType("rate_limited"))
	assert.False(t, ValidEventType("RATE_LIMITED"))
}

func TestValidSeverity(t *testing.T) {
	for _, s := range []string{"low", "medium", "high", "critical"} {
		assert.True(t, ValidSeverity(s), s)
	}
	assert.False(t, ValidSeverity("urgent"))
}

func TestSecurityEventPersist(t *testing.T) {
	db := setupTestDB(t, "security_event", &SecurityEvent{})

	uid := uint(42)
	ev := SecurityEvent{
		EventType: EventAuthFailure,
		Severity:  SeverityMedium,
		UserID:    &uid,
		IPAddress: "10.0.0.5",
		Details:   datatypes.JSON(`{"email":"alice@example.com"}`),
		Timestamp: time.Now(),
	}
	require.NoError(t, db.Create(&ev).Error)

	var found SecurityEvent
	require.NoError(t, db.First(&found, ev.ID).Error)
	assert.Equal(t, EventAuthFailure, found.EventType)
	assert.Equal(t, uid, *found.UserID)
	assert.JSONEq(t, `{"email":"alice@example.com"}`, string(found.Details))
}
