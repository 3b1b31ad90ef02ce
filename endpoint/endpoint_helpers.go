package endpoint

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ariebrainware/campus-gateway/middleware"
	"github.com/ariebrainware/campus-gateway/security"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
)

func bindJSONOrRespond(c *gin.Context, dst interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: msg, Err: err})
		return false
	}
	return true
}

func uintParamOrRespond(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		util.CallUserError(c, util.APIErrorParams{Msg: fmt.Sprintf("Invalid %s", name), Err: fmt.Errorf("%s must be a positive integer", name)})
		return 0, false
	}
	return uint(v), true
}

// actor is the authenticated administrator performing the request.
func actor(c *gin.Context) security.Actor {
	a := security.Actor{IP: middleware.GetIdentity(c).IP}
	if id, ok := middleware.GetUserID(c); ok {
		a.UserID = &id
	}
	return a
}

// queryFilter collects the first parse error of a listing's query parameters.
type queryFilter struct {
	c   *gin.Context
	err error
}

func (q *queryFilter) fail(key string, err error) {
	if q.err == nil {
		q.err = fmt.Errorf("query %s: %w", key, err)
	}
}

func (q *queryFilter) integer(key string) int {
	raw := q.c.Query(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		q.fail(key, fmt.Errorf("want a non-negative integer, got %q", raw))
		return 0
	}
	return v
}

func (q *queryFilter) userID(key string) *uint {
	raw := q.c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		q.fail(key, err)
		return nil
	}
	id := uint(v)
	return &id
}

// date accepts RFC3339 or YYYY-MM-DD. A bare end date covers the whole day.
func (q *queryFilter) date(key string, endOfDay bool) *time.Time {
	raw := q.c.Query(key)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		q.fail(key, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", raw))
		return nil
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t
}

func (q *queryFilter) oneOf(key string, valid func(string) bool) string {
	raw := q.c.Query(key)
	if raw != "" && !valid(raw) {
		q.fail(key, fmt.Errorf("unknown value %q", raw))
		return ""
	}
	return raw
}

type listResponse struct {
	Items  interface{} `json:"items"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
