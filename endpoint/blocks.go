package endpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/campus-gateway/audit"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/security"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
)

type BlockIPRequest struct {
	IP              string `json:"ip" binding:"required" example:"203.0.113.7"`
	Reason          string `json:"reason" example:"credential stuffing"`
	DurationMinutes int    `json:"duration_minutes" example:"1440"`
	Permanent       bool   `json:"permanent" example:"false"`
}

type CheckIPResponse struct {
	IP        string            `json:"ip"`
	IsBlocked bool              `json:"is_blocked"`
	Entry     *model.BlockEntry `json:"entry"`
}

// ListBlockedIPs godoc
// @Summary      List blocked IPs
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Param        active query bool false "Only blocks in force now"
// @Success      200 {object} util.APIResponse{data=[]model.BlockEntry}
// @Router       /api/security/blocked-ips [get]
func (h *API) ListBlockedIPs(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	entries, err := h.Blocks.List(c.Request.Context(), activeOnly, time.Now())
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to list blocked IPs", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Blocked IPs retrieved", Data: entries})
}

// BlockIP godoc
// @Summary      Block an IP
// @Description  Blocks for duration_minutes, or permanently. An existing block is never shortened.
// @Tags         Security
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body BlockIPRequest true "Block"
// @Success      201 {object} util.APIResponse{data=model.BlockEntry}
// @Failure      400 {object} util.APIResponse
// @Router       /api/security/blocked-ips [post]
func (h *API) BlockIP(c *gin.Context) {
	var req BlockIPRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}
	if !req.Permanent && req.DurationMinutes <= 0 {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid request payload", Err: errors.New("duration_minutes must be positive unless permanent is set")})
		return
	}

	who := actor(c)
	entry, err := h.Reputation.Block(c.Request.Context(), security.BlockParams{
		IP:        req.IP,
		Reason:    req.Reason,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		Permanent: req.Permanent,
		ActorID:   who.UserID,
	})
	if errors.Is(err, security.ErrInvalidIP) {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid IP address", Err: err})
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to block IP", Err: err})
		return
	}

	h.Recorder.Record(c.Request.Context(), audit.Entry{
		Type:     model.EventIPBlocked,
		Severity: model.SeverityMedium,
		UserID:   who.UserID,
		IP:       who.IP,
		Details: map[string]interface{}{
			"blocked_ip": entry.IPAddress,
			"reason":     req.Reason,
			"permanent":  entry.IsPermanent,
			"expires_at": entry.ExpiresAt,
		},
	})
	util.CallCreated(c, util.APISuccessParams{Msg: fmt.Sprintf("IP %s blocked", entry.IPAddress), Data: entry})
}

// UnblockIP godoc
// @Summary      Unblock an IP
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Param        ip path string true "IP address"
// @Success      200 {object} util.APIResponse{data=model.BlockEntry}
// @Failure      404 {object} util.APIResponse
// @Router       /api/security/blocked-ips/{ip} [delete]
func (h *API) UnblockIP(c *gin.Context) {
	entry, err := h.Reputation.Unblock(c.Request.Context(), c.Param("ip"))
	switch {
	case errors.Is(err, security.ErrInvalidIP):
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid IP address", Err: err})
		return
	case errors.Is(err, security.ErrNotFound):
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "IP is not blocked", Err: err})
		return
	case err != nil:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to unblock IP", Err: err})
		return
	}

	who := actor(c)
	h.Recorder.Record(c.Request.Context(), audit.Entry{
		Type:     model.EventIPUnblocked,
		Severity: model.SeverityMedium,
		UserID:   who.UserID,
		IP:       who.IP,
		Details:  map[string]interface{}{"unblocked_ip": entry.IPAddress},
	})
	util.CallSuccessOK(c, util.APISuccessParams{Msg: fmt.Sprintf("IP %s unblocked", entry.IPAddress), Data: entry})
}

// CheckIP godoc
// @Summary      Check whether an IP is blocked
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Param        ip path string true "IP address"
// @Success      200 {object} util.APIResponse{data=CheckIPResponse}
// @Router       /api/security/check-ip/{ip} [get]
func (h *API) CheckIP(c *gin.Context) {
	blocked, entry, err := h.Reputation.Status(c.Request.Context(), c.Param("ip"))
	if errors.Is(err, security.ErrInvalidIP) {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid IP address", Err: err})
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to check IP", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "IP status retrieved",
		Data: CheckIPResponse{IP: c.Param("ip"), IsBlocked: blocked, Entry: entry},
	})
}
