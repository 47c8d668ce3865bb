package webserver

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/govboard/src/board/policy"
)

// AdminMiddleware lets through only addresses on the administrator list.
func AdminMiddleware(admins policy.Admins) gin.HandlerFunc {
	return func(c *gin.Context) {
		userAddr := c.GetString("addr")
		if !admins.Contains(userAddr) {
			log.Printf("webserver: admin access denied for %s on %s", userAddr, c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "admin access required"})
			return
		}
		c.Next()
	}
}
