package endpoint

import (
	"errors"
	"time"

	"github.com/ariebrainware/campus-gateway/middleware"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
)

type LockAccountRequest struct {
	Reason          string `json:"reason" binding:"required" example:"suspected compromise"`
	DurationMinutes int    `json:"duration_minutes" example:"60"`
}

type ProfileResponse struct {
	*model.SecurityProfile
	IsLocked bool `json:"is_locked"`
}

func (h *API) profileResponse(c *gin.Context, userID uint) {
	locked, p, err := h.Lockout.IsLocked(c.Request.Context(), userID)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to read security profile", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Security profile retrieved", Data: ProfileResponse{SecurityProfile: p, IsLocked: locked}})
}

// accountOrRespond resolves the :user_id parameter to an existing account.
func (h *API) accountOrRespond(c *gin.Context) (uint, bool) {
	userID, ok := uintParamOrRespond(c, "user_id")
	if !ok {
		return 0, false
	}
	if _, err := h.Users.FindByID(c.Request.Context(), userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "User not found", Err: err})
		} else {
			util.CallServerError(c, util.APIErrorParams{Msg: "Database error", Err: err})
		}
		return 0, false
	}
	return userID, true
}

// MyProfile godoc
// @Summary      Caller's security profile
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=ProfileResponse}
// @Router       /api/security/profiles/me [get]
func (h *API) MyProfile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	h.profileResponse(c, userID)
}

// GetProfile godoc
// @Summary      Account security profile
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Param        user_id path int true "Account id"
// @Success      200 {object} util.APIResponse{data=ProfileResponse}
// @Failure      404 {object} util.APIResponse
// @Router       /api/security/profiles/{user_id} [get]
func (h *API) GetProfile(c *gin.Context) {
	userID, ok := h.accountOrRespond(c)
	if !ok {
		return
	}
	h.profileResponse(c, userID)
}

// UnlockAccount godoc
// @Summary      Unlock an account
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Param        user_id path int true "Account id"
// @Success      200 {object} util.APIResponse{data=model.SecurityProfile}
// @Failure      404 {object} util.APIResponse
// @Router       /api/security/profiles/{user_id}/unlock [post]
func (h *API) UnlockAccount(c *gin.Context) {
	userID, ok := h.accountOrRespond(c)
	if !ok {
		return
	}
	p, err := h.Lockout.Unlock(c.Request.Context(), userID, actor(c))
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to unlock account", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Account unlocked", Data: p})
}

// LockAccount godoc
// @Summary      Lock an account
// @Description  Locks for duration_minutes, or until unlocked when omitted.
// @Tags         Security
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        user_id path int                true "Account id"
// @Param        request body LockAccountRequest true "Lock"
// @Success      200 {object} util.APIResponse{data=model.SecurityProfile}
// @Failure      400 {object} util.APIResponse
// @Router       /api/security/profiles/{user_id}/lock [post]
func (h *API) LockAccount(c *gin.Context) {
	userID, ok := h.accountOrRespond(c)
	if !ok {
		return
	}
	var req LockAccountRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}
	if req.DurationMinutes < 0 {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid request payload", Err: errors.New("duration_minutes must not be negative")})
		return
	}
	p, err := h.Lockout.Lock(c.Request.Context(), userID, util.SanitizeLogValue(req.Reason), time.Duration(req.DurationMinutes)*time.Minute, actor(c))
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to lock account", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Account locked", Data: p})
}
