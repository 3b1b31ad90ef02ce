package security

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ariebrainware/campus-gateway/audit"
	"github.com/ariebrainware/campus-gateway/kvstore"
	"github.com/ariebrainware/campus-gateway/metrics"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/util"
	"go.uber.org/zap"
)

// Rejection messages returned to clients.
const (
	MessageIPBlocked   = "Access denied: Your IP address has been blocked."
	MessageAttack      = "Access denied: Security violation detected."
	MessageRateLimited = "Rate limit exceeded. Please try again later."
)

// Request is the part of an HTTP request the gateway inspects.
type Request struct {
	Method    string
	Path      string
	RawQuery  string
	Body      string
	UserAgent string
	Identity  Identity
}

// Decision is the gateway verdict on one request.
type Decision struct {
	Allowed bool
	Status  int
	Message string
	Outcome string
	Finding *Finding
	Class   Class
}

// GatewayConfig tunes automatic blocking.
type GatewayConfig struct {
	AttackThreshold   int
	AttackWindow      time.Duration
	AutoBlockDuration time.Duration
}

// Gateway runs the per-request checks in order: IP reputation, attack signatures, rate limits.
// Every rejection is recorded in the audit trail.
type Gateway struct {
	reputation *Reputation
	detector   *Detector
	limiter    *RateLimiter
	counters   kvstore.Store
	audit      Auditor
	cfg        GatewayConfig
}

func NewGateway(rep *Reputation, det *Detector, limiter *RateLimiter, counters kvstore.Store, auditor Auditor, cfg GatewayConfig) *Gateway {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	if cfg.AttackThreshold <= 0 {
		cfg.AttackThreshold = 3
	}
	if cfg.AttackWindow <= 0 {
		cfg.AttackWindow = time.Hour
	}
	if cfg.AutoBlockDuration <= 0 {
		cfg.AutoBlockDuration = 24 * time.Hour
	}
	return &Gateway{reputation: rep, detector: det, limiter: limiter, counters: counters, audit: auditor, cfg: cfg}
}

func attackCounterKey(ip string) string {
	return "attacks:ip:" + ip
}

// Check decides whether req may proceed.
func (g *Gateway) Check(ctx context.Context, req Request) Decision {
	id := req.Identity
	var userID *uint
	if id.UserID != 0 {
		uid := id.UserID
		userID = &uid
	}

	if g.reputation.IsBlocked(ctx, id.IP) {
		metrics.GatewayDecisionsTotal.WithLabelValues(metrics.OutcomeBlocked).Inc()
		g.audit.Record(ctx, audit.Entry{
			Type:      model.EventIPBlocked,
			Severity:  model.SeverityLow,
			UserID:    userID,
			IP:        id.IP,
			UserAgent: req.UserAgent,
			Details:   map[string]interface{}{"path": req.Path, "method": req.Method, "action": "request_refused"},
		})
		return Decision{Status: http.StatusForbidden, Message: MessageIPBlocked, Outcome: metrics.OutcomeBlocked}
	}

	if finding, bad := g.detector.Match(req.Path, req.RawQuery, req.Body); bad {
		metrics.GatewayDecisionsTotal.WithLabelValues(metrics.OutcomeAttack).Inc()
		g.handleAttack(ctx, req, userID, finding)
		return Decision{Status: http.StatusForbidden, Message: MessageAttack, Outcome: metrics.OutcomeAttack, Finding: &finding}
	}

	if class, limited := g.limiter.Classify(req.Path); limited {
		if !g.limiter.Allow(ctx, id, class) {
			metrics.GatewayDecisionsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
			g.audit.Record(ctx, audit.Entry{
				Type:      model.EventRateLimited,
				Severity:  model.SeverityLow,
				UserID:    userID,
				IP:        id.IP,
				UserAgent: req.UserAgent,
				Details:   map[string]interface{}{"path": req.Path, "class": string(class), "key": id.Key()},
			})
			return Decision{Status: http.StatusTooManyRequests, Message: MessageRateLimited, Outcome: metrics.OutcomeRateLimited, Class: class}
		}
		metrics.GatewayDecisionsTotal.WithLabelValues(metrics.OutcomeAllowed).Inc()
		return Decision{Allowed: true, Outcome: metrics.OutcomeAllowed, Class: class}
	}

	metrics.GatewayDecisionsTotal.WithLabelValues(metrics.OutcomeAllowed).Inc()
	return Decision{Allowed: true, Outcome: metrics.OutcomeAllowed}
}

func (g *Gateway) handleAttack(ctx context.Context, req Request, userID *uint, f Finding) {
	ip := req.Identity.IP
	log := util.Logger().With(zap.String("ip", util.SanitizeLogValue(ip)), zap.String("family", string(f.Family)))
	log.Warn("attack signature matched", zap.String("location", f.Location), zap.String("path", util.SanitizeLogValue(req.Path)))

	g.audit.Record(ctx, audit.Entry{
		Type:      model.EventAttackDetected,
		Severity:  model.SeverityHigh,
		UserID:    userID,
		IP:        ip,
		UserAgent: req.UserAgent,
		Details: map[string]interface{}{
			"path":     req.Path,
			"method":   req.Method,
			"family":   string(f.Family),
			"location": f.Location,
			"pattern":  f.Pattern,
		},
	})

	key := attackCounterKey(ip)
	attempts, err := g.counters.Incr(ctx, key, g.cfg.AttackWindow)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("gateway", "attack_counter").Inc()
		log.Warn("attack counter unavailable", zap.Error(err))
		return
	}
	if attempts < int64(g.cfg.AttackThreshold) {
		return
	}

	reason := fmt.Sprintf("Automated block after %d attack attempts", attempts)
	if _, err := g.reputation.Block(ctx, BlockParams{IP: ip, Reason: reason, Duration: g.cfg.AutoBlockDuration}); err != nil {
		log.Error("auto block failed", zap.Error(err))
		return
	}
	if err := g.counters.Delete(ctx, key); err != nil {
		log.Warn("attack counter not reset", zap.Error(err))
	}
	metrics.AutoBlocksTotal.Inc()
	log.Warn("IP auto-blocked", zap.Int64("attempts", attempts), zap.Duration("duration", g.cfg.AutoBlockDuration))

	details := map[string]interface{}{
		"attempts":    attempts,
		"duration":    g.cfg.AutoBlockDuration.String(),
		"last_family": string(f.Family),
		"automatic":   true,
		"reason":      reason,
	}
	g.audit.Record(ctx, audit.Entry{
		Type:      model.EventIPBlocked,
		Severity:  model.SeverityHigh,
		UserID:    userID,
		IP:        ip,
		UserAgent: req.UserAgent,
		Details:   details,
	})
	g.audit.RaiseAlert(ctx, audit.AlertRequest{
		Type:        model.AlertAttackAutoBlock,
		Severity:    model.SeverityHigh,
		IP:          ip,
		UserID:      userID,
		Description: fmt.Sprintf("IP %s blocked for %s after %d attack attempts", ip, g.cfg.AutoBlockDuration, attempts),
		Details:     details,
	})
}
