package middleware

import (
	"bytes"
	"io"
	"mime"
	"net/http"

	"github.com/ariebrainware/campus-gateway/security"
	"github.com/gin-gonic/gin"
)

// maxInspectedBody caps how much of a form body the detector sees.
const maxInspectedBody = 64 << 10

// SecurityGateway runs every request through gw and answers rejections in plain text.
// It must run after IdentifyUser.
func SecurityGateway(gw *security.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		req := security.Request{
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			RawQuery:  c.Request.URL.RawQuery,
			Body:      inspectableBody(c.Request),
			UserAgent: c.Request.UserAgent(),
			Identity:  id,
		}

		d := gw.Check(c.Request.Context(), req)
		c.Set("gateway_outcome", d.Outcome)
		if !d.Allowed {
			c.Data(d.Status, "text/plain; charset=utf-8", []byte(d.Message))
			c.Abort()
			return
		}
		c.Next()
	}
}

// inspectableBody returns the body of form-encoded POSTs and leaves the request body readable.
func inspectableBody(r *http.Request) string {
	if r.Method != http.MethodPost || r.Body == nil {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	if err != nil {
		return ""
	}
	return string(head)
}
