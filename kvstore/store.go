// Package kvstore is the shared, TTL-bounded key-value store behind the gateway's
// cross-request state: the reputation cache, rate windows, attack counters and alert
// suppression keys. Every read-modify-write it offers is atomic per key.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps every failure to reach the backing store.
var ErrUnavailable = errors.New("kvstore unavailable")

// WindowParams describes one sliding-window admission check.
type WindowParams struct {
	Key    string
	Limit  int
	Window time.Duration
	Now    time.Time
}

// Store is implemented by RedisStore for multi-process deployments and by MemoryStore for
// single-process deployments and tests.
type Store interface {
	// GetBool returns the value and whether the key was present.
	GetBool(ctx context.Context, key string) (value bool, found bool, err error)
	SetBool(ctx context.Context, key string, value bool, ttl time.Duration) error
	// SetIfAbsent creates key with ttl and reports true only for the caller that created it.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr adds one to the counter at key. The ttl is applied only when the counter is created,
	// so the counter expires ttl after its first increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// SlidingWindow drops timestamps at or before Now-Window, rejects without recording when
	// Limit timestamps remain and otherwise records Now and admits.
	SlidingWindow(ctx context.Context, p WindowParams) (bool, error)
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, key, ErrUnavailable, err)
}

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call on s by d. A timeout surfaces as ErrUnavailable wrapping
// context.DeadlineExceeded.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: d}
}

func (t *timeoutStore) GetBool(ctx context.Context, key string) (bool, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.GetBool(ctx, key)
}

func (t *timeoutStore) SetBool(ctx context.Context, key string, value bool, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.SetBool(ctx, key, value, ttl)
}

func (t *timeoutStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.SetIfAbsent(ctx, key, ttl)
}

func (t *timeoutStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Delete(ctx, key)
}

func (t *timeoutStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Incr(ctx, key, ttl)
}

func (t *timeoutStore) SlidingWindow(ctx context.Context, p WindowParams) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.SlidingWindow(ctx, p)
}
