package handlers

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/apierror"
	"github.com/gin-gonic/gin"
)

type APIError = apierror.APIError

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	apierror.Write(ctx, status, code, message, details)
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

// RespondServiceError maps a service error kind onto the response envelope.
// Internal errors are logged and answered with a generic message.
func RespondServiceError(ctx *gin.Context, err error) {
	switch user.KindOf(err) {
	case user.KindValidation:
		RespondBadRequest(ctx, user.MessageOf(err), nil)
	case user.KindNotFound:
		RespondNotFound(ctx, user.MessageOf(err))
	case user.KindConflict:
		RespondConflict(ctx, "email_taken", user.MessageOf(err))
	case user.KindUnauthorized:
		RespondUnAuthorized(ctx, "unauthorized", user.MessageOf(err))
	default:
		slog.Default().ErrorContext(ctx.Request.Context(), "request_failed",
			"route", ctx.FullPath(),
			"err", err,
		)
		RespondInternal(ctx, "Something went wrong")
	}
}
