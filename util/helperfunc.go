package util

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInternal = errors.New("internal server error")

type APIResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Msg     string      `json:"msg"`
	Data    interface{} `json:"data"`
}

type APIErrorParams struct {
	Msg string
	Err error
}

type APISuccessParams struct {
	Msg  string
	Data interface{}
}

func errorResponse(params APIErrorParams) APIResponse {
	return APIResponse{
		Success: false,
		Error:   params.Err.Error(),
		Msg:     params.Msg,
		Data:    map[string]interface{}{},
	}
}

func successResponse(params APISuccessParams) APIResponse {
	return APIResponse{Success: true, Msg: params.Msg, Data: params.Data}
}

// CallErrorNotFound is for return API response not found
func CallErrorNotFound(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusNotFound, errorResponse(params))
}

// CallUserError is for return error from user side
func CallUserError(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusBadRequest, errorResponse(params))
}

// CallServerError is for return API response server error. The cause is logged, not returned.
func CallServerError(c *gin.Context, params APIErrorParams) {
	Logger().Error(params.Msg, zap.String("path", c.FullPath()), zap.Error(params.Err))
	c.JSON(http.StatusInternalServerError, errorResponse(APIErrorParams{Msg: params.Msg, Err: errInternal}))
}

// CallSuccessOK is for return API response with status code 200
func CallSuccessOK(c *gin.Context, params APISuccessParams) {
	c.JSON(http.StatusOK, successResponse(params))
}

// CallUserNotAuthorized is for return API response with status code 401
func CallUserNotAuthorized(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusUnauthorized, errorResponse(params))
}

// CallForbidden is for return API response with status code 403 and abort the handler chain
func CallForbidden(c *gin.Context, params APIErrorParams) {
	c.AbortWithStatusJSON(http.StatusForbidden, errorResponse(params))
}

// CallServiceUnavailable is for return API response with status code 503
func CallServiceUnavailable(c *gin.Context, params APIErrorParams) {
	c.JSON(http.StatusServiceUnavailable, errorResponse(params))
}

// CallCreated is for return API response with status code 201
func CallCreated(c *gin.Context, params APISuccessParams) {
	c.JSON(http.StatusCreated, successResponse(params))
}

// NormalizeName trims a display name and collapses internal whitespace runs to one space.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
