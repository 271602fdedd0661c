package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/xerr"
)

// Response is the body of every JSON API reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    xerr.OK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{Code: code, Message: message})
}

// FailErr replies with err's trader-facing code and message. Internal errors
// are logged and their detail is not sent.
func FailErr(c *gin.Context, err error) {
	code := xerr.CodeOf(err)
	if code == xerr.Internal {
		logger.Error(c.Request.Context(), "http error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	Fail(c, HTTPStatus(code), code, xerr.MsgOf(err))
}

// HTTPStatus maps an error code to the HTTP status it is served with.
func HTTPStatus(code int) int {
	switch code {
	case xerr.OK:
		return http.StatusOK
	case xerr.BadRequest:
		return http.StatusBadRequest
	case xerr.UnknownInstrument:
		return http.StatusNotFound
	case xerr.InsufficientFunds, xerr.InsufficientShares:
		return http.StatusConflict
	case xerr.EngineBusy:
		return http.StatusServiceUnavailable
	case TooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// TooManyRequests is the code of a rate-limited API call.
const TooManyRequests = 429
