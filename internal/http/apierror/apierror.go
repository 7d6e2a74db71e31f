// Package apierror writes the JSON error envelope shared by handlers and
// middlewares: {"error":{"code","message","requestId","details"}}.
package apierror

import "github.com/gin-gonic/gin"

// RequestIDKey is where the request id middleware stores the id on *gin.Context.
const RequestIDKey = "request_id"

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

type Envelope struct {
	Error APIError `json:"error"`
}

func RequestID(ctx *gin.Context) string {
	if s := ctx.GetString(RequestIDKey); s != "" {
		return s
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func New(ctx *gin.Context, code, message string, details interface{}) Envelope {
	return Envelope{Error: APIError{
		Code:      code,
		Message:   message,
		RequestID: RequestID(ctx),
		Details:   details,
	}}
}

func Write(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, New(ctx, code, message, details))
}

// Abort writes the envelope and stops the handler chain.
func Abort(ctx *gin.Context, status int, code, message string) {
	ctx.AbortWithStatusJSON(status, New(ctx, code, message, nil))
}
