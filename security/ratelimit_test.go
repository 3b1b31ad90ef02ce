package security

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariebrainware/campus-gateway/config"
	"github.com/ariebrainware/campus-gateway/kvstore"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Classify(t *testing.T) {
	l := NewRateLimiter(kvstore.NewMemoryStore(time.Minute), config.DefaultSecurityConfig())

	tests := []struct {
		path    string
		class   Class
		limited bool
	}{
		{"/api/auth/login", ClassLogin, true},
		{"/api/auth/register", ClassRegister, true},
		{"/api/auth/password/reset", ClassPasswordReset, true},
		{"/api/courses", ClassAPI, true},
		{"/admin/dashboard", "", false},
		{"/api/security/summary", "", false},
		{"/api/securityx", ClassAPI, true},
		{"/healthz", "", false},
	}
	for _, tt := range tests {
		class, limited := l.Classify(tt.path)
		assert.Equal(t, tt.limited, limited, tt.path)
		assert.Equal(t, tt.class, class, tt.path)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	cfg := config.DefaultSecurityConfig()
	cfg.RateLimitEnabled = false
	l := NewRateLimiter(kvstore.NewMemoryStore(time.Minute), cfg)

	_, limited := l.Classify("/api/auth/login")
	assert.False(t, limited)
}

func TestRateLimiter_SixthLoginRejected(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(kvstore.NewMemoryStore(time.Minute), config.DefaultSecurityConfig())
	id := Identity{IP: "192.0.2.20"}

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(ctx, id, ClassLogin), "request %d", i+1)
	}
	assert.False(t, l.Allow(ctx, id, ClassLogin))

	// other identities and classes have their own windows
	assert.True(t, l.Allow(ctx, Identity{IP: "192.0.2.21"}, ClassLogin))
	assert.True(t, l.Allow(ctx, id, ClassAPI))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(kvstore.NewMemoryStore(time.Minute), config.DefaultSecurityConfig())
	base := time.Now()
	l.now = func() time.Time { return base }
	id := Identity{IP: "192.0.2.22", UserID: 8}

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, id, ClassRegister))
	}
	assert.False(t, l.Allow(ctx, id, ClassRegister))

	l.now = func() time.Time { return base.Add(61 * time.Second) }
	assert.True(t, l.Allow(ctx, id, ClassRegister))
}

func TestRateLimiter_ConcurrentCallersNeverExceedBudget(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(kvstore.NewMemoryStore(time.Minute), config.DefaultSecurityConfig())
	id := Identity{IP: "192.0.2.23"}

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(ctx, id, ClassLogin) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 5, admitted.Load())
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	l := NewRateLimiter(brokenStore{}, config.DefaultSecurityConfig())
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(context.Background(), Identity{IP: "192.0.2.24"}, ClassLogin))
	}
}

func TestRateKey(t *testing.T) {
	assert.Equal(t, "ratelimit:login:ip:10.0.0.1", RateKey(ClassLogin, Identity{IP: "10.0.0.1"}))
	assert.Equal(t, "ratelimit:api:user:5", RateKey(ClassAPI, Identity{IP: "10.0.0.1", UserID: 5}))
}
