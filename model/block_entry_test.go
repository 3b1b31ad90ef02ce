package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlockEntryIsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name  string
		entry BlockEntry
		want  bool
	}{
		{name: "permanent without expiry", entry: BlockEntry{IsPermanent: true}, want: true},
		{name: "permanent with past expiry", entry: BlockEntry{IsPermanent: true, ExpiresAt: &past}, want: true},
		{name: "temporary in future", entry: BlockEntry{ExpiresAt: &future}, want: true},
		{name: "temporary expired", entry: BlockEntry{ExpiresAt: &past}, want: false},
		{name: "temporary expiring now", entry: BlockEntry{ExpiresAt: &now}, want: false},
		{name: "cleared", entry: BlockEntry{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.IsActive(now))
		})
	}
}

func TestBlockEntryRemainingAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(90 * time.Second)
	past := now.Add(-time.Second)

	assert.Equal(t, 90*time.Second, BlockEntry{ExpiresAt: &future}.RemainingAt(now))
	assert.Zero(t, BlockEntry{ExpiresAt: &past}.RemainingAt(now))
	assert.Zero(t, BlockEntry{IsPermanent: true, ExpiresAt: &future}.RemainingAt(now))
}

func TestBlockEntryUniqueIP(t *testing.T) {
	db := setupTestDB(t, "block_entry", &BlockEntry{})

	assert.NoError(t, db.Create(&BlockEntry{IPAddress: "203.0.113.9", IsPermanent: true}).Error)
	assert.Error(t, db.Create(&BlockEntry{IPAddress: "203.0.113.9"}).Error)
}
