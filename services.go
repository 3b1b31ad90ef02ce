package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ariebrainware/campus-gateway/audit"
	"github.com/ariebrainware/campus-gateway/authevents"
	"github.com/ariebrainware/campus-gateway/config"
	"github.com/ariebrainware/campus-gateway/endpoint"
	"github.com/ariebrainware/campus-gateway/kvstore"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/security"
	"github.com/ariebrainware/campus-gateway/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// services is the wired gateway shared by the server and the admin commands.
type services struct {
	cfg     config.SecurityConfig
	db      *gorm.DB
	store   kvstore.Store
	geo     *util.GeoLocator
	bus     authevents.Bus
	closers []func()

	api     *endpoint.API
	gateway *security.Gateway
	detect  *security.Detector
}

// newServices connects the durable and shared stores and builds every component on top of them.
func newServices(withBus bool) (*services, error) {
	cfg, err := config.LoadSecurityConfig()
	if err != nil {
		return nil, fmt.Errorf("load security config: %w", err)
	}
	if secret := config.LoadConfig().JWTSecret; secret != "" {
		util.SetJWTSecret(secret)
	}
	util.InitUserIDCacheFromEnv()

	db, err := config.ConnectMySQL()
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s := &services{cfg: cfg, db: db}

	rdb, err := config.ConnectRedis()
	switch {
	case err != nil:
		return nil, fmt.Errorf("connect redis: %w", err)
	case rdb != nil:
		s.store = kvstore.NewRedisStore(rdb)
		s.closers = append(s.closers, func() { _ = rdb.Close() })
	default:
		util.Logger().Warn("redis disabled, using in-process shared store; counters are not shared between instances")
		s.store = kvstore.NewMemoryStore(time.Minute)
	}
	s.store = kvstore.WithTimeout(s.store, cfg.StoreTimeout)

	s.geo, err = util.OpenGeoLocator(cfg.GeoIPDBPath)
	if err != nil {
		util.Logger().Warn("geoip disabled", zap.Error(err))
		s.geo = nil
	}
	s.closers = append(s.closers, func() {
		hits, misses, size := s.geo.CacheMetrics()
		util.Logger().Debug("geoip cache", zap.Int64("hits", hits), zap.Int64("misses", misses), zap.Int("size", size))
		s.geo.Close()
	})

	s.bus = authevents.NewLocalBus()
	if withBus && cfg.NATSURL != "" {
		nb, err := authevents.NewNATSBus(cfg.NATSURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.bus = nb
		s.closers = append(s.closers, nb.Close)
	}

	s.wire()
	return s, nil
}

func (s *services) wire() {
	cfg := s.cfg
	users := repository.NewUserRepository(s.db)
	blocks := repository.NewBlockRepository(s.db)
	events := repository.NewEventRepository(s.db)
	alerts := repository.NewAlertRepository(s.db)

	lookup := func(ctx context.Context, email string) uint {
		return util.LookupUserIDByEmail(s.db.WithContext(ctx), email)
	}
	recorder := audit.NewRecorder(events, alerts, s.store, lookup, s.geo, audit.Config{
		FailedLoginThreshold: cfg.AlertThreshold,
		Window:               cfg.AlertWindow,
		WriteTimeout:         cfg.StoreTimeout,
	})
	lockout := security.NewLockout(repository.NewProfileRepository(s.db), recorder, security.LockoutConfig{
		MaxAttempts:  cfg.MaxLoginAttempts,
		Duration:     cfg.LockoutDuration,
		StoreTimeout: cfg.StoreTimeout,
	})
	s.bus.Subscribe(lockout.HandleAuthEvent)
	s.bus.Subscribe(recorder.HandleAuthEvent)

	reputation := security.NewReputation(s.store, blocks, security.ReputationConfig{
		CacheTTL:     cfg.BlockCacheTTL,
		StoreTimeout: cfg.StoreTimeout,
		FailOpen:     cfg.FailOpen,
	})
	s.detect = security.NewDetector(nil)
	s.gateway = security.NewGateway(reputation, s.detect, security.NewRateLimiter(s.store, cfg), s.store, recorder, security.GatewayConfig{
		AttackThreshold:   cfg.AttackThreshold,
		AttackWindow:      cfg.AttackWindow,
		AutoBlockDuration: cfg.AutoBlockDuration,
	})
	s.api = &endpoint.API{
		Reputation: reputation,
		Lockout:    lockout,
		Recorder:   recorder,
		Bus:        s.bus,
		Users:      users,
		Blocks:     blocks,
		Events:     events,
		Alerts:     alerts,
	}
}

// Close releases connections in reverse order of acquisition.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
