package middlewares

import (
	"net/http"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/apierror"
	"github.com/gin-gonic/gin"
)

// RequireRole must run after RequireAuth. Admins pass every role check.
func (m *AuthMiddleware) RequireRole(required user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			unauthorized(c, "", "Missing identity context")
			return
		}

		if role != required && role != user.RoleAdmin {
			apierror.Abort(c, http.StatusForbidden, "forbidden", string(required)+" role required")
			return
		}

		c.Next()
	}
}
