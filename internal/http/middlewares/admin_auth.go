package middlewares

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/dex-aggregator/internal/common"
	"github.com/hxuan190/dex-aggregator/internal/http/httputil"
)

// AdminAuth requires "Authorization: Bearer <token>". With no token
// configured the admin routes are open only when allowOpen is set.
func AdminAuth(token string, allowOpen bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			if allowOpen {
				c.Next()
				return
			}
			httputil.Abort(c, common.HTTPErrorForbidden("admin api disabled"))
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			httputil.Abort(c, common.HTTPErrorUnauthorized(""))
			return
		}
		c.Next()
	}
}
