package middleware

import (
	"github.com/gin-gonic/gin"
	"tinyex.com/pkg/common"
	"tinyex.com/pkg/logger"
)

// ReqID takes the request id from the header or makes one, echoes it back
// and puts it on the request context for logging and engine commands.
func ReqID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" {
			rid = common.NewReqID()
		}
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)
		c.Request = c.Request.WithContext(logger.WithReqID(c.Request.Context(), rid))
		c.Next()
	}
}
