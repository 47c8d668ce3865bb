package webserver

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/govboard/src/board/assets"
	"github.com/stake-plus/govboard/src/board/types"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, types.ErrInvalidType),
		errors.Is(err, types.ErrInvalidDraft),
		errors.Is(err, types.ErrInvalidParent),
		errors.Is(err, types.ErrInvalidOption),
		errors.Is(err, assets.ErrNotImage),
		errors.Is(err, assets.ErrTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrCommentsLocked),
		errors.Is(err, types.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("webserver: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"err": "internal error"})
		return
	}
	c.JSON(status, gin.H{"err": err.Error()})
}
