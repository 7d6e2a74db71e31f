package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/accounthub/internal/actorctx"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/apierror"
	"github.com/gin-gonic/gin"
)

// TokenVerifier is implemented by *auth.Manager.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAuth accepts only "Authorization: Bearer <access token>". Refresh
// tokens never authenticate a request; they travel in the cookie and only
// POST /users/refresh reads them.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, raw, found := strings.Cut(c.GetHeader("Authorization"), " ")
		raw = strings.TrimSpace(raw)

		if !found || !strings.EqualFold(scheme, "Bearer") || raw == "" {
			unauthorized(c, "", "Missing or invalid Authorization header")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			unauthorized(c, "invalid_token", "Invalid or expired access token")
			return
		}

		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxEmailKey, claims.Email)
		c.Set(ctxRoleKey, claims.Role)
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// unauthorized answers 401 with a bearer challenge. oauthErr is left out
// when no credentials were sent at all.
func unauthorized(c *gin.Context, oauthErr, msg string) {
	challenge := `Bearer realm="accounthub"`
	if oauthErr != "" {
		challenge += `, error="` + oauthErr + `"`
	}

	c.Header("WWW-Authenticate", challenge)
	apierror.Abort(c, http.StatusUnauthorized, "unauthorized", msg)
}

// Helpers so handlers don't need to know the keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func RoleFromContext(c *gin.Context) (user.Role, bool) {
	v, ok := c.Get(ctxRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return user.Role(role), ok
}
