package endpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/campus-gateway/authevents"
	"github.com/ariebrainware/campus-gateway/middleware"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"user@example.com"`
	Password string `json:"password" binding:"required" example:"password123"`
}

type LoginResponse struct {
	UserID uint   `json:"user_id" example:"1"`
	Email  string `json:"email" example:"user@example.com"`
	Role   string `json:"role" example:"Admin"`
}

// loginAttempt carries what every login outcome is published with.
type loginAttempt struct {
	c     *gin.Context
	email string
	ip    string
	agent string
}

func (a loginAttempt) publish(h *API, kind authevents.Kind, userID uint, reason string) {
	ev := authevents.Event{
		Kind:      kind,
		UserID:    userID,
		Email:     a.email,
		IP:        a.ip,
		UserAgent: a.agent,
		Reason:    reason,
		At:        time.Now(),
	}
	if err := h.Bus.Publish(a.c.Request.Context(), ev); err != nil {
		util.Logger().Error("failed to publish auth event",
			zap.String("kind", string(kind)),
			zap.String("ip", util.SanitizeLogValue(a.ip)),
			zap.Error(err))
	}
}

// Login godoc
// @Summary      User login
// @Description  Verify credentials against the account store. Outcomes are published as auth events
// @Description  that drive account lockout and failed-login alerting. No token is issued.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} util.APIResponse{data=LoginResponse} "Login successful"
// @Failure      400 {object} util.APIResponse "Invalid request payload"
// @Failure      401 {object} util.APIResponse "Invalid email or password"
// @Failure      403 {object} util.APIResponse "Account locked"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /api/auth/login [post]
func (h *API) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}
	attempt := loginAttempt{c: c, email: req.Email, ip: middleware.GetIdentity(c).IP, agent: c.Request.UserAgent()}
	ctx := c.Request.Context()

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		attempt.publish(h, authevents.KindFailure, 0, "user not found")
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "Invalid email or password", Err: errors.New("invalid credentials")})
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database error", Err: err})
		return
	}

	locked, profile, err := h.Lockout.IsLocked(ctx, user.ID)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to read account state", Err: err})
		return
	}
	if locked {
		attempt.publish(h, authevents.KindFailure, user.ID, "account locked")
		util.CallForbidden(c, util.APIErrorParams{Msg: lockedMessage(profile), Err: errors.New("account locked")})
		return
	}

	if !util.VerifyPassword(req.Password, user.Password) {
		attempt.publish(h, authevents.KindFailure, user.ID, "invalid password")
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "Invalid email or password", Err: errors.New("invalid credentials")})
		return
	}

	attempt.publish(h, authevents.KindSuccess, user.ID, "")
	util.UserIDCacheSet(user.Email, user.ID)
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Login successful",
		Data: LoginResponse{UserID: user.ID, Email: user.Email, Role: user.Role.Name},
	})
}

func lockedMessage(p *model.SecurityProfile) string {
	if p.LockedUntil == nil {
		return "Account is locked. Contact an administrator."
	}
	return fmt.Sprintf("Account is locked until %s due to multiple failed login attempts", p.LockedUntil.UTC().Format(time.RFC3339))
}
