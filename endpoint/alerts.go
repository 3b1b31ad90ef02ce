package endpoint

import (
	"errors"

	"github.com/ariebrainware/campus-gateway/audit"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
)

type UpdateAlertRequest struct {
	Status string `json:"status" binding:"required" example:"resolved"`
	Note   string `json:"note" example:"password reset with the account owner"`
}

// ListAlerts godoc
// @Summary      List security alerts
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Param        type       query string false "Alert type"
// @Param        severity   query string false "Severity"
// @Param        status     query string false "new, acknowledged, resolved or false_positive"
// @Param        ip_address query string false "Client IP"
// @Param        user_id    query int    false "Account id"
// @Param        start_date query string false "From"
// @Param        end_date   query string false "Until"
// @Param        limit      query int    false "Page size"
// @Param        offset     query int    false "Offset"
// @Success      200 {object} util.APIResponse{data=listResponse}
// @Router       /api/security/alerts [get]
func (h *API) ListAlerts(c *gin.Context) {
	q := queryFilter{c: c}
	f := repository.AlertFilter{
		AlertType: c.Query("type"),
		Severity:  q.oneOf("severity", model.ValidSeverity),
		Status:    q.oneOf("status", model.ValidAlertStatus),
		IPAddress: c.Query("ip_address"),
		UserID:    q.userID("user_id"),
		Start:     q.date("start_date", false),
		End:       q.date("end_date", true),
		Limit:     q.integer("limit"),
		Offset:    q.integer("offset"),
	}
	if q.err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid filter", Err: q.err})
		return
	}

	alerts, total, err := h.Alerts.List(c.Request.Context(), f)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to list security alerts", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Security alerts retrieved",
		Data: listResponse{Items: alerts, Total: total, Limit: repository.PageSize(f.Limit), Offset: f.Offset},
	})
}

// UpdateAlert godoc
// @Summary      Change an alert's status
// @Description  new -> acknowledged -> resolved | false_positive. Resolved and false_positive are final.
// @Tags         Security
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path int                true "Alert id"
// @Param        request body UpdateAlertRequest true "Transition"
// @Success      200 {object} util.APIResponse{data=model.SecurityAlert}
// @Failure      400 {object} util.APIResponse
// @Failure      404 {object} util.APIResponse
// @Router       /api/security/alerts/{id} [patch]
func (h *API) UpdateAlert(c *gin.Context) {
	id, ok := uintParamOrRespond(c, "id")
	if !ok {
		return
	}
	var req UpdateAlertRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	alert, err := h.Recorder.Transition(c.Request.Context(), id, model.AlertStatus(req.Status), actor(c).UserID, util.SanitizeLogValue(req.Note))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Alert not found", Err: err})
		return
	case errors.Is(err, audit.ErrInvalidTransition):
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid status transition", Err: err})
		return
	case err != nil:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update alert", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Alert updated", Data: alert})
}
