package http

import (
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterDeps struct {
	Env            string
	ServiceName    string
	Users          handlers.UserService
	Tokens         middlewares.TokenVerifier
	LoginLimiter   ratelimit.Limiter
	Prom           *observability.Prom
	ReadyChecks    map[string]func() error
	AllowedOrigins []string
	MaxBodyBytes   int64
	// Tracing adds the otelgin middleware; leave off when no provider is set up.
	Tracing bool
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	if d.Tracing {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders(d.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(d.AllowedOrigins))

	var onLimited func()
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
		r.GET("/metrics", gin.WrapH(d.Prom.Handler()))
		onLimited = d.Prom.ObserveThrottled
	}

	// health
	h := handlers.NewHealthHandler(d.ReadyChecks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	// docs
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	usersHandler := handlers.NewUsersHandler(d.Users, d.Env == "prod")
	authMW := middlewares.NewAuthMiddleware(d.Tokens)

	users := r.Group("/users")
	if d.MaxBodyBytes > 0 {
		users.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	}

	requireJSON := middlewares.RequireJSON()

	users.POST("", requireJSON, usersHandler.CreateUser)

	login := []gin.HandlerFunc{requireJSON}
	if d.LoginLimiter != nil {
		login = append(login, middlewares.RateLimit(d.LoginLimiter, middlewares.KeyByIP, onLimited))
	}
	users.POST("/login", append(login, usersHandler.Login)...)
	users.POST("/refresh", usersHandler.Refresh)
	users.POST("/logout", usersHandler.Logout)

	authed := users.Group("")
	authed.Use(authMW.RequireAuth())
	{
		authed.GET("/me", usersHandler.Me)
		authed.PUT("", requireJSON, usersHandler.UpdateUser)
		authed.DELETE("", usersHandler.DeleteUser)
		authed.GET("", authMW.RequireRole(user.RoleAdmin), usersHandler.ListUsers)
	}

	return r
}
