package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	obscontext "github.com/smallbiznis/subsight/internal/observability/context"
)

// requireUser pulls the tenant identifier from the request. The
// logging middleware has already copied X-User-Id into the request
// context; a header fallback covers routes hit before it runs.
func requireUser(c *gin.Context) (string, bool) {
	userID := obscontext.UserIDFromGin(c)
	if userID == "" {
		userID = strings.TrimSpace(c.GetHeader("X-User-Id"))
	}
	if userID == "" {
		AbortWithError(c, ErrUnauthorized)
		return "", false
	}
	return userID, true
}
