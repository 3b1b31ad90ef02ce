// Package endpoint holds the HTTP handlers: the reference login flow and the security
// administration API.
package endpoint

import (
	"github.com/ariebrainware/campus-gateway/audit"
	"github.com/ariebrainware/campus-gateway/authevents"
	"github.com/ariebrainware/campus-gateway/middleware"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/security"
	"github.com/gin-gonic/gin"
)

// API carries the services the handlers depend on.
type API struct {
	Reputation *security.Reputation
	Lockout    *security.Lockout
	Recorder   *audit.Recorder
	Bus        authevents.Bus
	Users      *repository.UserRepository
	Blocks     *repository.BlockRepository
	Events     *repository.EventRepository
	Alerts     *repository.AlertRepository
}

// RegisterRoutes mounts the health check, the login endpoint and the /api/security
// administration API.
func (h *API) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	auth := r.Group("/api/auth")
	auth.POST("/login", h.Login)
	auth.POST("/login/", h.Login)

	sec := r.Group("/api/security")
	sec.GET("/profiles/me", middleware.RequireAuth(), h.MyProfile)

	admin := sec.Group("", middleware.RequireAdmin())
	admin.GET("/summary", h.Summary)
	admin.GET("/events", h.ListEvents)
	admin.GET("/alerts", h.ListAlerts)
	admin.PATCH("/alerts/:id", h.UpdateAlert)
	admin.GET("/blocked-ips", h.ListBlockedIPs)
	admin.POST("/blocked-ips", h.BlockIP)
	admin.DELETE("/blocked-ips/:ip", h.UnblockIP)
	admin.GET("/check-ip/:ip", h.CheckIP)
	admin.GET("/profiles/:user_id", h.GetProfile)
	admin.POST("/profiles/:user_id/unlock", h.UnlockAccount)
	admin.POST("/profiles/:user_id/lock", h.LockAccount)
}
