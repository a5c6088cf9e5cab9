package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ctxCompanyID = "company_id"
	ctxActorID   = "actor_id"
	ctxActorRole = "actor_role"
)

// identityMiddleware extracts caller identity from the headers set by the
// upstream session gateway. Requests without a company or actor are rejected.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.GetHeader("X-Company-ID")
		actorID := c.GetHeader("X-Actor-ID")

		if companyID == "" || actorID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing identity headers",
			})
			return
		}

		c.Set(ctxCompanyID, companyID)
		c.Set(ctxActorID, actorID)
		c.Set(ctxActorRole, c.GetHeader("X-Actor-Role"))

		c.Next()
	}
}

// requireRole restricts a route group to callers holding one of the given roles
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxActorRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, Response{
			Success: false,
			Error:   "insufficient role",
		})
	}
}
