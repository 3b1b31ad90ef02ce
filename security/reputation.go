package security

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/ariebrainware/campus-gateway/kvstore"
	"github.com/ariebrainware/campus-gateway/metrics"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/util"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an IP or account has no record.
var ErrNotFound = repository.ErrNotFound

// ErrInvalidIP is returned for block requests that do not name a single address.
var ErrInvalidIP = errors.New("invalid IP address")

// BlockStore is the durable block list.
type BlockStore interface {
	FindByIP(ctx context.Context, ip string) (*model.BlockEntry, error)
	Upsert(ctx context.Context, req repository.BlockRequest, now time.Time) (*model.BlockEntry, error)
	Deactivate(ctx context.Context, ip string) (*model.BlockEntry, error)
}

// ReputationConfig tunes block lookups.
type ReputationConfig struct {
	CacheTTL     time.Duration
	StoreTimeout time.Duration
	// FailOpen admits requests when the block status cannot be determined.
	FailOpen bool
}

// BlockParams describes a block. Zero Duration with Permanent unset means permanent too.
type BlockParams struct {
	IP        string
	Reason    string
	Duration  time.Duration
	Permanent bool
	ActorID   *uint
}

// Reputation answers whether an IP is blocked, with the durable block list as the source of
// truth and the shared store as a read-through cache.
type Reputation struct {
	cache  kvstore.Store
	blocks BlockStore
	cfg    ReputationConfig
	now    func() time.Time
}

func NewReputation(cache kvstore.Store, blocks BlockStore, cfg ReputationConfig) *Reputation {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Reputation{cache: cache, blocks: blocks, cfg: cfg, now: time.Now}
}

func blockCacheKey(ip string) string {
	return "blocked:ip:" + ip
}

// NormalizeIP returns the canonical text form of a single address.
func NormalizeIP(ip string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return addr.Unmap().String(), nil
}

// bounded limits one durable-store round trip to StoreTimeout.
func (r *Reputation) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.StoreTimeout)
}

// IsBlocked reports whether requests from ip must be refused. Lookup failures resolve to the
// configured fail-open policy. Values that are not an address are never blocked.
func (r *Reputation) IsBlocked(ctx context.Context, ip string) bool {
	ip, err := NormalizeIP(ip)
	if err != nil {
		return false
	}
	key := blockCacheKey(ip)
	log := util.Logger().With(zap.String("ip", util.SanitizeLogValue(ip)))

	blocked, found, err := r.cache.GetBool(ctx, key)
	if err == nil && found {
		return blocked
	}
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("reputation", "cache_get").Inc()
		log.Warn("block cache unavailable", zap.Error(err))
	}

	dbCtx, cancel := r.bounded(ctx)
	defer cancel()
	entry, err := r.blocks.FindByIP(dbCtx, ip)
	now := r.now()
	ttl := r.cfg.CacheTTL
	switch {
	case errors.Is(err, repository.ErrNotFound):
		blocked = false
	case err != nil:
		metrics.StoreErrorsTotal.WithLabelValues("reputation", "db_lookup").Inc()
		log.Error("block lookup failed", zap.Error(err), zap.Bool("fail_open", r.cfg.FailOpen))
		return !r.cfg.FailOpen
	default:
		blocked = entry.IsActive(now)
		if remaining := entry.RemainingAt(now); blocked && remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}

	if ttl > 0 {
		if err := r.cache.SetBool(ctx, key, blocked, ttl); err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("reputation", "cache_set").Inc()
			log.Warn("failed to cache block status", zap.Error(err))
		}
	}
	return blocked
}

// Status reads the block entry for ip straight from the durable list.
func (r *Reputation) Status(ctx context.Context, ip string) (bool, *model.BlockEntry, error) {
	ip, err := NormalizeIP(ip)
	if err != nil {
		return false, nil, err
	}
	dbCtx, cancel := r.bounded(ctx)
	defer cancel()
	entry, err := r.blocks.FindByIP(dbCtx, ip)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return entry.IsActive(r.now()), entry, nil
}

// Block records or extends a block and marks the cache. An existing block is never shortened.
func (r *Reputation) Block(ctx context.Context, p BlockParams) (*model.BlockEntry, error) {
	ip, err := NormalizeIP(p.IP)
	if err != nil {
		return nil, err
	}
	now := r.now()
	req := repository.BlockRequest{
		IP:          ip,
		Reason:      p.Reason,
		Permanent:   p.Permanent || p.Duration <= 0,
		CreatedByID: p.ActorID,
	}
	if !req.Permanent {
		until := now.Add(p.Duration)
		req.ExpiresAt = &until
	}

	dbCtx, cancel := r.bounded(ctx)
	defer cancel()
	entry, err := r.blocks.Upsert(dbCtx, req, now)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", ip, err)
	}

	ttl := r.cfg.CacheTTL
	if remaining := entry.RemainingAt(now); remaining > 0 && remaining < ttl {
		ttl = remaining
	}
	if err := r.cache.SetBool(ctx, blockCacheKey(ip), true, ttl); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("reputation", "cache_set").Inc()
		util.Logger().Warn("blocked IP not cached", zap.String("ip", ip), zap.Error(err))
	}
	return entry, nil
}

// Unblock deactivates the block on ip and drops the cached status.
func (r *Reputation) Unblock(ctx context.Context, ip string) (*model.BlockEntry, error) {
	ip, err := NormalizeIP(ip)
	if err != nil {
		return nil, err
	}
	dbCtx, cancel := r.bounded(ctx)
	defer cancel()
	entry, err := r.blocks.Deactivate(dbCtx, ip)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Delete(ctx, blockCacheKey(ip)); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("reputation", "cache_delete").Inc()
		util.Logger().Warn("stale block status may linger in cache", zap.String("ip", ip), zap.Error(err))
	}
	return entry, nil
}
