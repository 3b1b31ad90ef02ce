package endpoint

import (
	"time"

	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
)

// summaryPeriod is how far back the security summary counts events.
const summaryPeriod = 7 * 24 * time.Hour

type SummaryResponse struct {
	ActiveBlocks int64 `json:"active_blocks"`
	TotalBlocks  int64 `json:"total_blocks"`
	OpenAlerts   int64 `json:"open_alerts"`
	repository.EventSummary
	Since time.Time `json:"since"`
}

// ListEvents godoc
// @Summary      List security events
// @Description  Newest first. Dates accept RFC3339 or YYYY-MM-DD.
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Param        event_type query string false "Event type"
// @Param        severity   query string false "Severity"
// @Param        ip_address query string false "Client IP"
// @Param        user_id    query int    false "Account id"
// @Param        start_date query string false "From"
// @Param        end_date   query string false "Until"
// @Param        limit      query int    false "Page size (default 50, max 500)"
// @Param        offset     query int    false "Offset"
// @Success      200 {object} util.APIResponse{data=listResponse}
// @Failure      400 {object} util.APIResponse
// @Router       /api/security/events [get]
func (h *API) ListEvents(c *gin.Context) {
	q := queryFilter{c: c}
	f := repository.EventFilter{
		EventType: q.oneOf("event_type", model.ValidEventType),
		Severity:  q.oneOf("severity", model.ValidSeverity),
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

	events, total, err := h.Events.List(c.Request.Context(), f)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to list security events", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Security events retrieved",
		Data: listResponse{Items: events, Total: total, Limit: repository.PageSize(f.Limit), Offset: f.Offset},
	})
}

// Summary godoc
// @Summary      Security overview
// @Description  Block counts, open alerts and event counts over the last 7 days.
// @Tags         Security
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=SummaryResponse}
// @Router       /api/security/summary [get]
func (h *API) Summary(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()
	resp := SummaryResponse{Since: now.Add(-summaryPeriod).UTC()}

	var err error
	if resp.ActiveBlocks, resp.TotalBlocks, err = h.Blocks.Counts(ctx, now); err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count blocks", Err: err})
		return
	}
	if resp.EventSummary, err = h.Events.Summary(ctx, resp.Since); err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to summarise events", Err: err})
		return
	}
	if resp.OpenAlerts, err = h.Alerts.CountOpen(ctx); err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count alerts", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Security summary retrieved", Data: resp})
}
