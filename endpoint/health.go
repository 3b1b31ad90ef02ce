package endpoint

import (
	"errors"

	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
)

var errBusDisconnected = errors.New("auth event bus disconnected")

// HealthStatus reports the state of the gateway's dependencies.
type HealthStatus struct {
	EventBus string `json:"event_bus"`
}

// Health answers 503 while a networked event bus has lost its connection. The in-process bus
// is always healthy.
func (h *API) Health(c *gin.Context) {
	if nb, ok := h.Bus.(interface{ IsConnected() bool }); ok && !nb.IsConnected() {
		util.CallServiceUnavailable(c, util.APIErrorParams{Msg: "Event bus unavailable", Err: errBusDisconnected})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "OK", Data: HealthStatus{EventBus: "connected"}})
}
