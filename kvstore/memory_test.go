package kvstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Bool(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	_, found, err := s.GetBool(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetBool(ctx, "k", true, time.Minute))
	v, found, err := s.GetBool(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, found, _ = s.GetBool(ctx, "k")
	assert.False(t, found)
}

func TestMemoryStore_BoolExpires(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.SetBool(ctx, "k", true, 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, found, err := s.GetBool(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.GetBool(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.Incr(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_SetIfAbsent(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.SetIfAbsent(ctx, "alert:ip:10.0.0.5", time.Hour); err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestMemoryStore_IncrConcurrent(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Incr(ctx, "attacks", time.Hour)
		}()
	}
	wg.Wait()

	n, err := s.Incr(ctx, "attacks", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
}

func TestMemoryStore_IncrTTLAnchoredAtFirst(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	n, _ := s.Incr(ctx, "c", 60*time.Millisecond)
	assert.Equal(t, int64(1), n)
	time.Sleep(40 * time.Millisecond)
	n, _ = s.Incr(ctx, "c", 60*time.Millisecond)
	assert.Equal(t, int64(2), n)
	time.Sleep(40 * time.Millisecond)

	// later increments did not extend the first expiry
	n, _ = s.Incr(ctx, "c", 60*time.Millisecond)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_SlidingWindow(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := WindowParams{Key: "w", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		p.Now = start.Add(time.Duration(i) * time.Second)
		ok, err := s.SlidingWindow(ctx, p)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	p.Now = start.Add(30 * time.Second)
	ok, _ := s.SlidingWindow(ctx, p)
	assert.False(t, ok, "fourth request inside the window is rejected")

	// rejected calls are not recorded, so the first slot frees at start+60s
	p.Now = start.Add(60 * time.Second)
	ok, _ = s.SlidingWindow(ctx, p)
	assert.True(t, ok)

	p.Now = start.Add(60*time.Second + 500*time.Millisecond)
	ok, _ = s.SlidingWindow(ctx, p)
	assert.False(t, ok)
}

func TestMemoryStore_SlidingWindowConcurrent(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()
	now := time.Now()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SlidingWindow(ctx, WindowParams{Key: "hot", Limit: 5, Window: time.Minute, Now: now})
			if err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), admitted.Load())
}

type slowStore struct{ Store }

func (slowStore) GetBool(ctx context.Context, key string) (bool, bool, error) {
	<-ctx.Done()
	return false, false, unavailable("get", key, ctx.Err())
}

func TestWithTimeout(t *testing.T) {
	s := WithTimeout(slowStore{Store: NewMemoryStore(time.Minute)}, 10*time.Millisecond)

	start := time.Now()
	_, _, err := s.GetBool(context.Background(), "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	ok, err := s.SetIfAbsent(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	inner := NewMemoryStore(time.Minute)
	assert.Same(t, inner, WithTimeout(inner, 0))
}
