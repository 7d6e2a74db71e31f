package middlewares

import (
	"mime"
	"net/http"

	"github.com/geocoder89/accounthub/internal/http/apierror"
	"github.com/gin-gonic/gin"
)

// RequireJSON guards the user endpoints that take a body. Requests with no
// body at all are let through so binding reports the missing fields.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mediaType != "application/json" {
			apierror.Abort(c, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
			return
		}

		c.Next()
	}
}
