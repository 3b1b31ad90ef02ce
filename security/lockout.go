package security

import (
	"context"
	"time"

	"github.com/ariebrainware/campus-gateway/audit"
	"github.com/ariebrainware/campus-gateway/authevents"
	"github.com/ariebrainware/campus-gateway/metrics"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/util"
	"go.uber.org/zap"
)

// LockReasonFailedLogins is stored on profiles locked by the failed-login threshold.
const LockReasonFailedLogins = "Too many failed login attempts"

// Auditor is the slice of the audit trail the gateway writes to.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
	RaiseAlert(ctx context.Context, req audit.AlertRequest) bool
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Entry) {}

func (nopAuditor) RaiseAlert(context.Context, audit.AlertRequest) bool {
	return false
}

// ProfileStore persists per-account security state.
type ProfileStore interface {
	Get(ctx context.Context, userID uint) (*model.SecurityProfile, error)
	RecordFailure(ctx context.Context, userID uint, threshold int, reason string, lockUntil time.Time) (*model.SecurityProfile, bool, error)
	RecordSuccess(ctx context.Context, userID uint, at time.Time) error
	ExpireLock(ctx context.Context, userID uint, now time.Time) (bool, error)
	ClearLock(ctx context.Context, userID uint) (*model.SecurityProfile, error)
	Lock(ctx context.Context, userID uint, reason string, until *time.Time) (*model.SecurityProfile, error)
}

// LockoutConfig tunes account lockout.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
	// StoreTimeout bounds each profile read or write. Zero leaves the caller's context as is.
	StoreTimeout time.Duration
}

// Actor identifies who performed an administrative action.
type Actor struct {
	UserID *uint
	IP     string
}

// Lockout locks accounts after repeated failed logins. Expired locks are lifted lazily by the
// next read or failure.
type Lockout struct {
	profiles ProfileStore
	audit    Auditor
	cfg      LockoutConfig
	now      func() time.Time
}

func NewLockout(profiles ProfileStore, auditor Auditor, cfg LockoutConfig) *Lockout {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Minute
	}
	return &Lockout{profiles: profiles, audit: auditor, cfg: cfg, now: time.Now}
}

func (l *Lockout) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.cfg.StoreTimeout)
}

// Profile returns the account's profile after lifting an expired lock.
func (l *Lockout) Profile(ctx context.Context, userID uint) (*model.SecurityProfile, error) {
	ctx, cancel := l.bounded(ctx)
	defer cancel()
	if _, err := l.profiles.ExpireLock(ctx, userID, l.now()); err != nil {
		return nil, err
	}
	return l.profiles.Get(ctx, userID)
}

// IsLocked reports whether the account is locked now.
func (l *Lockout) IsLocked(ctx context.Context, userID uint) (bool, *model.SecurityProfile, error) {
	p, err := l.Profile(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	return p.IsLockedAt(l.now()), p, nil
}

// HandleAuthEvent updates the account's profile. Events without a known account are ignored.
func (l *Lockout) HandleAuthEvent(ctx context.Context, ev authevents.Event) error {
	if ev.UserID == 0 {
		return nil
	}
	now := l.now()
	dbCtx, cancel := l.bounded(ctx)
	defer cancel()
	if ev.Kind == authevents.KindSuccess {
		return l.profiles.RecordSuccess(dbCtx, ev.UserID, now)
	}

	if _, err := l.profiles.ExpireLock(dbCtx, ev.UserID, now); err != nil {
		return err
	}
	p, locked, err := l.profiles.RecordFailure(dbCtx, ev.UserID, l.cfg.MaxAttempts, LockReasonFailedLogins, now.Add(l.cfg.Duration))
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	metrics.AccountLocksTotal.Inc()
	util.Logger().Warn("account locked",
		zap.Uint("user_id", ev.UserID),
		zap.Int("failed_attempts", p.FailedAttempts),
		zap.String("ip", util.SanitizeLogValue(ev.IP)))
	userID := ev.UserID
	l.audit.Record(ctx, audit.Entry{
		Type:      model.EventAccountLocked,
		Severity:  model.SeverityHigh,
		UserID:    &userID,
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
		Details: map[string]interface{}{
			"reason":          LockReasonFailedLogins,
			"failed_attempts": p.FailedAttempts,
			"locked_until":    p.LockedUntil,
		},
	})
	return nil
}

// Unlock clears the lock and failed-attempt count on behalf of an administrator.
func (l *Lockout) Unlock(ctx context.Context, userID uint, actor Actor) (*model.SecurityProfile, error) {
	dbCtx, cancel := l.bounded(ctx)
	p, err := l.profiles.ClearLock(dbCtx, userID)
	cancel()
	if err != nil {
		return nil, err
	}
	target := userID
	l.audit.Record(ctx, audit.Entry{
		Type:     model.EventAccountUnlocked,
		Severity: model.SeverityMedium,
		UserID:   &target,
		IP:       actor.IP,
		Details:  map[string]interface{}{"unlocked_by": actor.UserID},
	})
	return p, nil
}

// Lock locks the account on behalf of an administrator. A zero duration locks until unlocked.
func (l *Lockout) Lock(ctx context.Context, userID uint, reason string, duration time.Duration, actor Actor) (*model.SecurityProfile, error) {
	var until *time.Time
	if duration > 0 {
		t := l.now().Add(duration)
		until = &t
	}
	dbCtx, cancel := l.bounded(ctx)
	p, err := l.profiles.Lock(dbCtx, userID, reason, until)
	cancel()
	if err != nil {
		return nil, err
	}
	metrics.AccountLocksTotal.Inc()
	target := userID
	l.audit.Record(ctx, audit.Entry{
		Type:     model.EventAccountLocked,
		Severity: model.SeverityHigh,
		UserID:   &target,
		IP:       actor.IP,
		Details:  map[string]interface{}{"reason": reason, "locked_by": actor.UserID, "locked_until": until},
	})
	return p, nil
}
