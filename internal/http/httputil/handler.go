package httputil

import "github.com/gin-gonic/gin"

// IHttpHandler mounts one resource under Root. Routes added to admin sit
// behind the admin token check.
type IHttpHandler interface {
	Root() string
	SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup)
}
