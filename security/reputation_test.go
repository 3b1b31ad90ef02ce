package security

import (
	"context"
	"testing"
	"time"

	"github.com/ariebrainware/campus-gateway/kvstore"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReputation(t *testing.T, cache kvstore.Store) (*Reputation, *repository.BlockRepository) {
	t.Helper()
	blocks := repository.NewBlockRepository(setupTestDB(t))
	return NewReputation(cache, blocks, ReputationConfig{CacheTTL: 5 * time.Minute, FailOpen: true}), blocks
}

func TestReputation_BlockAndUnblock(t *testing.T) {
	ctx := context.Background()
	cache := kvstore.NewMemoryStore(time.Minute)
	rep, _ := newReputation(t, cache)

	assert.False(t, rep.IsBlocked(ctx, "203.0.113.10"))

	entry, err := rep.Block(ctx, BlockParams{IP: "203.0.113.10", Reason: "manual", Duration: time.Hour, ActorID: uintPtr(1)})
	require.NoError(t, err)
	assert.False(t, entry.IsPermanent)
	require.NotNil(t, entry.ExpiresAt)
	assert.True(t, rep.IsBlocked(ctx, "203.0.113.10"))

	cached, found, err := cache.GetBool(ctx, "blocked:ip:203.0.113.10")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, cached)

	_, err = rep.Unblock(ctx, "203.0.113.10")
	require.NoError(t, err)
	assert.False(t, rep.IsBlocked(ctx, "203.0.113.10"))

	_, err = rep.Unblock(ctx, "203.0.113.99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReputation_NegativeResultIsCached(t *testing.T) {
	ctx := context.Background()
	cache := kvstore.NewMemoryStore(time.Minute)
	rep, _ := newReputation(t, cache)

	assert.False(t, rep.IsBlocked(ctx, "198.51.100.1"))
	v, found, err := cache.GetBool(ctx, "blocked:ip:198.51.100.1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, v)
}

func TestReputation_ZeroDurationIsPermanent(t *testing.T) {
	ctx := context.Background()
	rep, _ := newReputation(t, kvstore.NewMemoryStore(time.Minute))

	entry, err := rep.Block(ctx, BlockParams{IP: "198.51.100.2", Reason: "abuse"})
	require.NoError(t, err)
	assert.True(t, entry.IsPermanent)
	assert.Nil(t, entry.ExpiresAt)
}

func TestReputation_BlockNeverShortens(t *testing.T) {
	ctx := context.Background()
	rep, _ := newReputation(t, kvstore.NewMemoryStore(time.Minute))

	long, err := rep.Block(ctx, BlockParams{IP: "198.51.100.3", Duration: 48 * time.Hour})
	require.NoError(t, err)
	short, err := rep.Block(ctx, BlockParams{IP: "198.51.100.3", Duration: time.Hour})
	require.NoError(t, err)
	require.NotNil(t, short.ExpiresAt)
	assert.WithinDuration(t, *long.ExpiresAt, *short.ExpiresAt, time.Second)
}

func TestReputation_ExpiredBlockAdmits(t *testing.T) {
	ctx := context.Background()
	rep, blocks := newReputation(t, kvstore.NewMemoryStore(time.Minute))
	past := time.Now().Add(-time.Minute)
	_, err := blocks.Upsert(ctx, repository.BlockRequest{IP: "198.51.100.4", ExpiresAt: &past}, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	assert.False(t, rep.IsBlocked(ctx, "198.51.100.4"))
}

func TestReputation_FallsBackToDatabaseWhenCacheDown(t *testing.T) {
	ctx := context.Background()
	rep, blocks := newReputation(t, brokenStore{})
	_, err := blocks.Upsert(ctx, repository.BlockRequest{IP: "198.51.100.5", Permanent: true}, time.Now())
	require.NoError(t, err)

	assert.True(t, rep.IsBlocked(ctx, "198.51.100.5"))
	assert.False(t, rep.IsBlocked(ctx, "198.51.100.6"))

	// cache failures do not fail writes
	_, err = rep.Block(ctx, BlockParams{IP: "198.51.100.7", Duration: time.Hour})
	assert.NoError(t, err)
}

func TestReputation_FailurePolicy(t *testing.T) {
	ctx := context.Background()

	open := NewReputation(brokenStore{}, &brokenBlocks{}, ReputationConfig{FailOpen: true})
	assert.False(t, open.IsBlocked(ctx, "192.0.2.1"))

	closed := NewReputation(brokenStore{}, &brokenBlocks{}, ReputationConfig{FailOpen: false})
	assert.True(t, closed.IsBlocked(ctx, "192.0.2.1"))
}

func TestReputation_InvalidInput(t *testing.T) {
	ctx := context.Background()
	blocks := &brokenBlocks{}
	rep := NewReputation(kvstore.NewMemoryStore(time.Minute), blocks, ReputationConfig{FailOpen: false})

	assert.False(t, rep.IsBlocked(ctx, "not-an-ip"))
	assert.Zero(t, blocks.lookups)

	_, err := rep.Block(ctx, BlockParams{IP: "10.0.0.0/8"})
	assert.ErrorIs(t, err, ErrInvalidIP)
}

func TestReputation_Status(t *testing.T) {
	ctx := context.Background()
	rep, _ := newReputation(t, kvstore.NewMemoryStore(time.Minute))

	blocked, entry, err := rep.Status(ctx, "192.0.2.50")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Nil(t, entry)

	_, err = rep.Block(ctx, BlockParams{IP: "192.0.2.50", Reason: "scan", Duration: time.Hour})
	require.NoError(t, err)
	blocked, entry, err = rep.Status(ctx, "192.0.2.50")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "scan", entry.Reason)
}

func TestReputation_DurableCallsBoundedByStoreTimeout(t *testing.T) {
	ctx := context.Background()
	rep := NewReputation(kvstore.NewMemoryStore(time.Minute), hangingBlocks{}, ReputationConfig{
		StoreTimeout: 50 * time.Millisecond,
		FailOpen:     true,
	})

	start := time.Now()
	_, err := rep.Block(ctx, BlockParams{IP: "198.51.100.90", Reason: "test", Duration: time.Hour})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = rep.Unblock(ctx, "198.51.100.90")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, _, err = rep.Status(ctx, "198.51.100.90")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.False(t, rep.IsBlocked(ctx, "198.51.100.91"))
	assert.Less(t, time.Since(start), time.Second)
}
