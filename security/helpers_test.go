package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariebrainware/campus-gateway/audit"
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
	dsn := fmt.Sprintf("file:security_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
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

var errDown = fmt.Errorf("dial tcp: connection refused: %w", kvstore.ErrUnavailable)

// brokenStore fails every call the way an unreachable Redis would.
type brokenStore struct{}

func (brokenStore) GetBool(context.Context, string) (bool, bool, error) {
	return false, false, errDown
}
func (brokenStore) SetBool(context.Context, string, bool, time.Duration) error { return errDown }
func (brokenStore) SetIfAbsent(context.Context, string, time.Duration) (bool, error) {
	return false, errDown
}
func (brokenStore) Delete(context.Context, string) error { return errDown }
func (brokenStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errDown
}
func (brokenStore) SlidingWindow(context.Context, kvstore.WindowParams) (bool, error) {
	return false, errDown
}

// brokenBlocks is a block list whose database is down.
type brokenBlocks struct{ lookups int }

func (b *brokenBlocks) FindByIP(context.Context, string) (*model.BlockEntry, error) {
	b.lookups++
	return nil, errors.New("database is down")
}

func (b *brokenBlocks) Upsert(context.Context, repository.BlockRequest, time.Time) (*model.BlockEntry, error) {
	return nil, errors.New("database is down")
}

func (b *brokenBlocks) Deactivate(context.Context, string) (*model.BlockEntry, error) {
	return nil, errors.New("database is down")
}

// recordingAuditor keeps everything the gateway wrote to the audit trail.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
	alerts  []audit.AlertRequest
}

func (a *recordingAuditor) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) RaiseAlert(_ context.Context, req audit.AlertRequest) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, req)
	return true
}

func (a *recordingAuditor) count(t model.EventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.Type == t {
			n++
		}
	}
	return n
}

func uintPtr(v uint) *uint { return &v }

// hangingBlocks is a block list whose database accepts connections but never answers.
type hangingBlocks struct{}

func (hangingBlocks) FindByIP(ctx context.Context, _ string) (*model.BlockEntry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingBlocks) Upsert(ctx context.Context, _ repository.BlockRequest, _ time.Time) (*model.BlockEntry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingBlocks) Deactivate(ctx context.Context, _ string) (*model.BlockEntry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// hangingProfiles is a profile store that never answers.
type hangingProfiles struct{}

func (hangingProfiles) Get(ctx context.Context, _ uint) (*model.SecurityProfile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingProfiles) RecordFailure(ctx context.Context, _ uint, _ int, _ string, _ time.Time) (*model.SecurityProfile, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (hangingProfiles) RecordSuccess(ctx context.Context, _ uint, _ time.Time) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingProfiles) ExpireLock(ctx context.Context, _ uint, _ time.Time) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (hangingProfiles) ClearLock(ctx context.Context, _ uint) (*model.SecurityProfile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingProfiles) Lock(ctx context.Context, _ uint, _ string, _ *time.Time) (*model.SecurityProfile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
