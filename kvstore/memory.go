package kvstore

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

const lockStripes = 64

// MemoryStore implements Store inside one process. Read-modify-write operations on the same
// key serialize on one of a fixed set of striped mutexes.
type MemoryStore struct {
	items *cache.Cache
	locks [lockStripes]sync.Mutex
}

// NewMemoryStore returns an empty store that purges expired keys every cleanup interval.
func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	return &MemoryStore{items: cache.New(cache.NoExpiration, cleanup)}
}

func (s *MemoryStore) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

func (s *MemoryStore) GetBool(ctx context.Context, key string) (bool, bool, error) {
	if err := ctx.Err(); err != nil {
		return false, false, unavailable("get", key, err)
	}
	v, ok := s.items.Get(key)
	if !ok {
		return false, false, nil
	}
	b, _ := v.(bool)
	return b, true, nil
}

func (s *MemoryStore) SetBool(ctx context.Context, key string, value bool, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return unavailable("set", key, err)
	}
	s.items.Set(key, value, ttlOrForever(ttl))
	return nil
}

func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("setnx", key, err)
	}
	return s.items.Add(key, true, ttlOrForever(ttl)) == nil, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("del", key, err)
	}
	s.items.Delete(key)
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("incr", key, err)
	}
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	if _, ok := s.items.Get(key); ok {
		// IncrementInt64 keeps the expiry set at creation.
		if n, err := s.items.IncrementInt64(key, 1); err == nil {
			return n, nil
		}
	}
	s.items.Set(key, int64(1), ttlOrForever(ttl))
	return 1, nil
}

func (s *MemoryStore) SlidingWindow(ctx context.Context, p WindowParams) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("window", p.Key, err)
	}
	mu := s.lock(p.Key)
	mu.Lock()
	defer mu.Unlock()

	var stamps []time.Time
	if v, ok := s.items.Get(p.Key); ok {
		stamps, _ = v.([]time.Time)
	}
	cutoff := p.Now.Add(-p.Window)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= p.Limit {
		s.items.Set(p.Key, kept, 2*p.Window)
		return false, nil
	}
	kept = append(kept, p.Now)
	s.items.Set(p.Key, kept, 2*p.Window)
	return true, nil
}
