package model

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestAutoMigrate(t *testing.T) {
	db := setupTestDB(t, "migrate")
	require.NoError(t, AutoMigrate(db))

	for _, table := range []interface{}{&User{}, &BlockEntry{}, &SecurityProfile{}, &SecurityEvent{}, &SecurityAlert{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}

	var admin Role
	require.NoError(t, db.Where("name = ?", RoleAdmin).First(&admin).Error)
	assert.NotZero(t, admin.ID)
}

// Client addresses are recorded as resolved, which may be a forwarded value longer than any
// textual IPv6 address.
func TestIPAddressColumnsFitClientValues(t *testing.T) {
	for _, m := range []interface{}{&BlockEntry{}, &SecurityEvent{}, &SecurityAlert{}} {
		s, err := schema.Parse(m, &sync.Map{}, schema.NamingStrategy{})
		require.NoError(t, err)
		field := s.LookUpField("IPAddress")
		require.NotNil(t, field, s.Name)
		assert.Equal(t, "varchar(255)", field.TagSettings["TYPE"], s.Name)
	}

	db := setupTestDB(t, "long_ip", &SecurityEvent{})
	long := "2001:db8:85a3::8a2e:370:7334, " + strings.Repeat("9", 30)
	ev := SecurityEvent{EventType: EventAttackDetected, Severity: SeverityHigh, IPAddress: long, Timestamp: time.Now()}
	require.NoError(t, db.Create(&ev).Error)

	var found SecurityEvent
	require.NoError(t, db.First(&found, ev.ID).Error)
	assert.Equal(t, long, found.IPAddress)
}
