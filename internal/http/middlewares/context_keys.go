package middlewares

import "github.com/geocoder89/accounthub/internal/http/apierror"

// Keys stored on *gin.Context by the middlewares in this package.
const (
	CtxRequestID = apierror.RequestIDKey
	ctxUserIDKey = "auth.userID"
	ctxEmailKey  = "auth.email"
	ctxRoleKey   = "auth.role"
)
