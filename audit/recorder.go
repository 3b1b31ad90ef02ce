// Package audit records security events and raises alerts when event patterns cross thresholds.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ariebrainware/campus-gateway/authevents"
	"github.com/ariebrainware/campus-gateway/kvstore"
	"github.com/ariebrainware/campus-gateway/metrics"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/util"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// EventStore appends and counts security events.
type EventStore interface {
	Create(ctx context.Context, ev *model.SecurityEvent) error
	CountSince(ctx context.Context, eventType model.EventType, ip string, since time.Time) (int64, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	Create(ctx context.Context, a *model.SecurityAlert) error
	Get(ctx context.Context, id uint) (*model.SecurityAlert, error)
	HasOpen(ctx context.Context, alertType, ip string, since time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id uint, from, to model.AlertStatus, res repository.Resolution) (bool, error)
}

// UserLookup resolves an account id from an email, 0 when there is none.
type UserLookup func(ctx context.Context, email string) uint

// Entry is a security event to record.
type Entry struct {
	Type      model.EventType
	Severity  model.Severity
	UserID    *uint
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// AlertRequest describes an alert to raise.
type AlertRequest struct {
	Type        string
	Severity    model.Severity
	IP          string
	UserID      *uint
	Description string
	Details     map[string]interface{}
}

// Config tunes alerting.
type Config struct {
	// FailedLoginThreshold auth failures from one IP within Window raise an alert.
	FailedLoginThreshold int
	Window               time.Duration
	// WriteTimeout bounds each durable write made while recording.
	WriteTimeout time.Duration
}

// Recorder is the durable audit trail. Recording never fails the caller: write errors are
// logged and counted, then dropped.
type Recorder struct {
	events   EventStore
	alerts   AlertStore
	users    UserLookup
	suppress kvstore.Store
	geo      *util.GeoLocator
	cfg      Config
	now      func() time.Time
}

// NewRecorder wires the recorder. suppress, users and geo may be nil.
func NewRecorder(events EventStore, alerts AlertStore, suppress kvstore.Store, users UserLookup, geo *util.GeoLocator, cfg Config) *Recorder {
	if cfg.FailedLoginThreshold <= 0 {
		cfg.FailedLoginThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = time.Second
	}
	return &Recorder{
		events:   events,
		alerts:   alerts,
		users:    users,
		suppress: suppress,
		geo:      geo,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (r *Recorder) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cfg.WriteTimeout)
}

// Record appends one event.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	ev := model.SecurityEvent{
		EventType: e.Type,
		Severity:  e.Severity,
		UserID:    e.UserID,
		IPAddress: util.SanitizeLogValue(e.IP),
		UserAgent: util.SanitizeLogValue(e.UserAgent),
		Location:  util.SanitizeLogValue(r.geo.Locate(e.IP).String()),
		Details:   encodeDetails(e.Details),
		Timestamp: r.now(),
	}

	log := util.Logger().With(
		zap.String("event_type", string(ev.EventType)),
		zap.String("severity", string(ev.Severity)),
		zap.String("ip", ev.IPAddress),
	)
	if ev.UserID != nil {
		log = log.With(zap.Uint("user_id", *ev.UserID))
	}

	wctx, cancel := r.writeContext(ctx)
	defer cancel()
	if err := r.events.Create(wctx, &ev); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		log.Error("failed to persist security event", zap.Error(err))
		return
	}
	metrics.SecurityEventsTotal.WithLabelValues(string(ev.EventType), string(ev.Severity)).Inc()
	log.Info("security event")
}

func encodeDetails(details map[string]interface{}) datatypes.JSON {
	if len(details) == 0 {
		return nil
	}
	clean := make(map[string]interface{}, len(details))
	for k, v := range details {
		if s, ok := v.(string); ok {
			v = util.SanitizeLogValue(s)
		}
		clean[k] = v
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func suppressionKey(alertType, ip string, userID *uint) string {
	account := "-"
	if userID != nil {
		account = strconv.FormatUint(uint64(*userID), 10)
	}
	return fmt.Sprintf("alert:%s:%s:%s", alertType, ip, account)
}

// RaiseAlert creates the alert unless one for the same type, IP and account was raised within
// the alert window. It reports whether an alert was created.
func (r *Recorder) RaiseAlert(ctx context.Context, req AlertRequest) bool {
	log := util.Logger().With(zap.String("alert_type", req.Type), zap.String("ip", util.SanitizeLogValue(req.IP)))
	wctx, cancel := r.writeContext(ctx)
	defer cancel()

	key := suppressionKey(req.Type, req.IP, req.UserID)
	claimed := false
	if r.suppress != nil {
		first, err := r.suppress.SetIfAbsent(wctx, key, r.cfg.Window)
		if err == nil && !first {
			return false
		}
		if err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("audit", "suppress").Inc()
			log.Warn("alert suppression unavailable, checking open alerts", zap.Error(err))
		}
		claimed = err == nil
	}
	if !claimed {
		open, err := r.alerts.HasOpen(wctx, req.Type, req.IP, r.now().Add(-r.cfg.Window))
		if err != nil {
			log.Error("failed to check open alerts", zap.Error(err))
			return false
		}
		if open {
			return false
		}
	}

	alert := model.SecurityAlert{
		AlertType:   req.Type,
		Severity:    req.Severity,
		Status:      model.AlertNew,
		UserID:      req.UserID,
		IPAddress:   util.SanitizeLogValue(req.IP),
		Description: util.SanitizeLogValue(req.Description),
		Details:     encodeDetails(req.Details),
	}
	if err := r.alerts.Create(wctx, &alert); err != nil {
		log.Error("failed to create alert", zap.Error(err))
		if claimed {
			_ = r.suppress.Delete(wctx, key)
		}
		return false
	}
	metrics.SecurityAlertsTotal.WithLabelValues(req.Type).Inc()
	log.Warn("security alert raised", zap.Uint("alert_id", alert.ID))
	return true
}

// HandleAuthEvent records the outcome of a login attempt. Failures are checked inline against the
// failed-login threshold for the client IP; an alert is raised only when an account can be
// resolved for the attempt.
func (r *Recorder) HandleAuthEvent(ctx context.Context, ev authevents.Event) error {
	var userID *uint
	if ev.UserID != 0 {
		id := ev.UserID
		userID = &id
	}
	details := map[string]interface{}{"email": ev.Email}

	if ev.Kind == authevents.KindSuccess {
		r.Record(ctx, Entry{Type: model.EventAuthSuccess, Severity: model.SeverityLow, UserID: userID, IP: ev.IP, UserAgent: ev.UserAgent, Details: details})
		return nil
	}

	if ev.Reason != "" {
		details["reason"] = ev.Reason
	}
	r.Record(ctx, Entry{Type: model.EventAuthFailure, Severity: model.SeverityMedium, UserID: userID, IP: ev.IP, UserAgent: ev.UserAgent, Details: details})

	wctx, cancel := r.writeContext(ctx)
	defer cancel()
	since := r.now().Add(-r.cfg.Window)
	failures, err := r.events.CountSince(wctx, model.EventAuthFailure, util.SanitizeLogValue(ev.IP), since)
	if err != nil {
		return fmt.Errorf("count failed logins for %s: %w", ev.IP, err)
	}
	if failures < int64(r.cfg.FailedLoginThreshold) {
		return nil
	}

	if userID == nil && r.users != nil {
		if id := r.users(wctx, ev.Email); id != 0 {
			userID = &id
		}
	}
	if userID == nil {
		return nil
	}
	r.RaiseAlert(ctx, AlertRequest{
		Type:        model.AlertMultipleFailedLogins,
		Severity:    model.SeverityMedium,
		IP:          ev.IP,
		UserID:      userID,
		Description: fmt.Sprintf("%d failed login attempts from %s within %s", failures, ev.IP, r.cfg.Window),
		Details:     map[string]interface{}{"email": ev.Email, "failed_attempts": failures},
	})
	return nil
}
