package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"prodreport/internal/pkg/response"
)

// RequireRole gates a route group on the role claim set by Auth.
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "role not found in token")
			c.Abort()
			return
		}

		if role.(string) != requiredRole {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
			c.Abort()
			return
		}

		c.Next()
	}
}

// SupervisorOnly guards approval and scheduler control routes.
func SupervisorOnly() gin.HandlerFunc {
	return RequireRole("supervisor")
}
