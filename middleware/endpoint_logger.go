package middleware

import (
	"strconv"
	"time"

	"github.com/ariebrainware/campus-gateway/metrics"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestID propagates X-Request-ID, generating one when the client sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// EndpointCallLogger writes one access log line per request and feeds the HTTP metrics.
// Routes are labelled by their pattern so ids in paths do not explode metric cardinality.
func EndpointCallLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(c.Request.Method, route).Observe(duration.Seconds())

		id := GetIdentity(c)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", util.SanitizeLogValue(c.Request.URL.Path)),
			zap.Int("status", status),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("ip", util.SanitizeLogValue(id.IP)),
			zap.String("request_id", c.GetString(RequestIDKey)),
		}
		if id.UserID != 0 {
			fields = append(fields, zap.Uint("user_id", id.UserID))
		}
		if outcome := c.GetString("gateway_outcome"); outcome != "" {
			fields = append(fields, zap.String("gateway", outcome))
		}

		log := util.Logger()
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
