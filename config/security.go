package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateBudget is a request budget for one endpoint class.
type RateBudget struct {
	MaxRequests int
	Window      time.Duration
}

// SecurityConfig holds the tunables of the request-time security gateway.
type SecurityConfig struct {
	RateLimitEnabled    bool
	LoginBudget         RateBudget
	RegisterBudget      RateBudget
	PasswordResetBudget RateBudget
	APIBudget           RateBudget
	ExemptPrefixes      []string

	// StoreTimeout bounds every shared-store and durable-store round trip made while
	// handling a request.
	StoreTimeout  time.Duration
	BlockCacheTTL time.Duration
	FailOpen      bool

	AttackThreshold   int
	AttackWindow      time.Duration
	AutoBlockDuration time.Duration

	MaxLoginAttempts int
	LockoutDuration  time.Duration

	AlertThreshold int
	AlertWindow    time.Duration

	SecureTransport bool
	TrustedProxies  []string
	SignaturesFile  string
	NATSURL         string
	GeoIPDBPath     string
}

// DefaultSecurityConfig returns the built-in gateway settings.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		RateLimitEnabled:    true,
		LoginBudget:         RateBudget{MaxRequests: 5, Window: time.Minute},
		RegisterBudget:      RateBudget{MaxRequests: 3, Window: time.Minute},
		PasswordResetBudget: RateBudget{MaxRequests: 3, Window: 5 * time.Minute},
		APIBudget:           RateBudget{MaxRequests: 60, Window: time.Minute},
		ExemptPrefixes:      []string{"/admin/", "/api/security/"},
		StoreTimeout:        75 * time.Millisecond,
		BlockCacheTTL:       5 * time.Minute,
		FailOpen:            true,
		AttackThreshold:     3,
		AttackWindow:        time.Hour,
		AutoBlockDuration:   24 * time.Hour,
		MaxLoginAttempts:    5,
		LockoutDuration:     30 * time.Minute,
		AlertThreshold:      5,
		AlertWindow:         time.Hour,
	}
}

// LoadSecurityConfig reads the gateway settings from the environment on top of the defaults.
// Malformed values are reported instead of being silently replaced.
func LoadSecurityConfig() (SecurityConfig, error) {
	LoadConfig()
	cfg := DefaultSecurityConfig()
	p := envParser{}

	cfg.RateLimitEnabled = p.boolean("RATE_LIMIT_ENABLE", cfg.RateLimitEnabled)
	cfg.LoginBudget = p.budget("RATE_LIMIT_LOGIN", cfg.LoginBudget)
	cfg.RegisterBudget = p.budget("RATE_LIMIT_REGISTER", cfg.RegisterBudget)
	cfg.PasswordResetBudget = p.budget("RATE_LIMIT_PASSWORD", cfg.PasswordResetBudget)
	cfg.APIBudget = p.budget("RATE_LIMIT_API", cfg.APIBudget)
	cfg.ExemptPrefixes = p.list("RATE_LIMIT_EXEMPT_PREFIXES", cfg.ExemptPrefixes)
	cfg.StoreTimeout = p.duration("STORE_TIMEOUT", cfg.StoreTimeout)
	cfg.BlockCacheTTL = p.duration("BLOCK_CACHE_TTL", cfg.BlockCacheTTL)
	cfg.FailOpen = p.boolean("REPUTATION_FAIL_OPEN", cfg.FailOpen)
	cfg.AttackThreshold = p.integer("ATTACK_ATTEMPT_THRESHOLD", cfg.AttackThreshold)
	cfg.AttackWindow = p.duration("ATTACK_WINDOW", cfg.AttackWindow)
	cfg.AutoBlockDuration = p.duration("AUTO_BLOCK_DURATION", cfg.AutoBlockDuration)
	cfg.MaxLoginAttempts = p.integer("MAX_LOGIN_ATTEMPTS", cfg.MaxLoginAttempts)
	cfg.LockoutDuration = p.duration("LOCKOUT_DURATION", cfg.LockoutDuration)
	cfg.AlertThreshold = p.integer("ALERT_FAILED_LOGIN_THRESHOLD", cfg.AlertThreshold)
	cfg.AlertWindow = p.duration("ALERT_WINDOW", cfg.AlertWindow)
	cfg.SecureTransport = p.boolean("SECURE_TRANSPORT", cfg.SecureTransport)
	cfg.TrustedProxies = p.list("TRUSTED_PROXIES", nil)
	cfg.SignaturesFile = os.Getenv("SIGNATURES_FILE")
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.GeoIPDBPath = os.Getenv("GEOIP_DB_PATH")

	if p.err != nil {
		return cfg, p.err
	}
	return cfg, nil
}

// ParseRateBudget parses budgets written as "<max>/<duration>", e.g. "5/1m" or "3/300s".
func ParseRateBudget(s string) (RateBudget, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 {
		return RateBudget{}, fmt.Errorf("invalid rate budget %q: want <max>/<duration>", s)
	}
	max, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || max <= 0 {
		return RateBudget{}, fmt.Errorf("invalid rate budget %q: bad request count", s)
	}
	window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil || window <= 0 {
		return RateBudget{}, fmt.Errorf("invalid rate budget %q: bad window", s)
	}
	return RateBudget{MaxRequests: max, Window: window}, nil
}

// envParser keeps the first parse error so LoadSecurityConfig can report it once.
type envParser struct {
	err error
}

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config %s: %w", key, err)
	}
}

func (p *envParser) boolean(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return v
}

func (p *envParser) integer(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		p.fail(key, fmt.Errorf("want a positive integer, got %q", raw))
		return fallback
	}
	return v
}

func (p *envParser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		p.fail(key, fmt.Errorf("want a positive duration, got %q", raw))
		return fallback
	}
	return v
}

func (p *envParser) budget(key string, fallback RateBudget) RateBudget {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := ParseRateBudget(raw)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return v
}

func (p *envParser) list(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
