package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/policies"
)

const (
	principalContextKey = "divineconnect.principal"

	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// HeaderAuth trusts identity headers set by the gateway in front of the service.
// Requests without a user id pass through anonymously.
func HeaderAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerUserID))
		if id == "" {
			c.Next()
			return
		}
		role := policies.ParseRole(strings.ToLower(strings.TrimSpace(c.GetHeader(headerUserRole))))
		c.Set(principalContextKey, policies.Actor{ID: id, Role: role})
		c.Next()
	}
}

func currentActor(c *gin.Context) (policies.Actor, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return policies.Actor{}, false
	}
	actor, ok := val.(policies.Actor)
	return actor, ok
}

// requireRole answers 401/403 itself and reports false when the caller may not proceed.
// An empty role admits any authenticated caller.
func requireRole(c *gin.Context, role policies.Role) (policies.Actor, bool) {
	actor, ok := currentActor(c)
	if !ok {
		c.Set("error_code", apperr.CodeUnauthorized)
		c.JSON(http.StatusUnauthorized, errorBody{Code: apperr.CodeUnauthorized, Message: "authentication required"})
		return policies.Actor{}, false
	}
	if role != "" && actor.Role != role && actor.Role != policies.RoleAdmin {
		c.Set("error_code", apperr.CodeForbidden)
		c.JSON(http.StatusForbidden, errorBody{Code: apperr.CodeForbidden, Message: "insufficient permissions"})
		return policies.Actor{}, false
	}
	return actor, true
}
