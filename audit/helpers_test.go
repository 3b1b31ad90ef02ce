package audit

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ariebrainware/campus-gateway/kvstore"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:audit_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, model.AutoMigrate(db))
	return db
}

type fixture struct {
	db       *gorm.DB
	events   *repository.EventRepository
	alerts   *repository.AlertRepository
	recorder *Recorder
}

func newFixture(t *testing.T, suppress kvstore.Store, users UserLookup) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		db:     db,
		events: repository.NewEventRepository(db),
		alerts: repository.NewAlertRepository(db),
	}
	f.recorder = NewRecorder(f.events, f.alerts, suppress, users, nil, Config{FailedLoginThreshold: 5, Window: time.Hour})
	return f
}

// brokenStore fails every call the way an unreachable Redis would.
type brokenStore struct{}

func (brokenStore) err() error { return fmt.Errorf("dial: %w", kvstore.ErrUnavailable) }
func (b brokenStore) GetBool(context.Context, string) (bool, bool, error) {
	return false, false, b.err()
}
func (b brokenStore) SetBool(context.Context, string, bool, time.Duration) error { return b.err() }
func (b brokenStore) SetIfAbsent(context.Context, string, time.Duration) (bool, error) {
	return false, b.err()
}
func (b brokenStore) Delete(context.Context, string) error { return b.err() }
func (b brokenStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, b.err()
}
func (b brokenStore) SlidingWindow(context.Context, kvstore.WindowParams) (bool, error) {
	return false, b.err()
}

// failingEvents rejects every write.
type failingEvents struct{}

func (failingEvents) Create(context.Context, *model.SecurityEvent) error {
	return fmt.Errorf("database is locked")
}

func (failingEvents) CountSince(context.Context, model.EventType, string, time.Time) (int64, error) {
	return 0, fmt.Errorf("database is locked")
}

func uintPtr(v uint) *uint { return &v }
