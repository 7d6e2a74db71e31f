package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	"github.com/geocoder89/accounthub/internal/domain/user"
	httpx "github.com/geocoder89/accounthub/internal/http"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/ratelimit"
	"github.com/geocoder89/accounthub/internal/redisclient"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/geocoder89/accounthub/internal/service"
)

const serviceName = "accounthub"

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.OTelEnabled {
		ctx, cancel := config.WithTimeout(5 * time.Second)
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: serviceName,
			Environment: cfg.Env,
			Endpoint:    cfg.OTelEndpoint,
			SampleRatio: cfg.OTelSampling,
		})
		cancel()

		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}

		defer func() {
			ctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdownTracer(ctx)
		}()
	}

	prom := observability.NewProm(observability.NewRegistry())
	readyChecks := map[string]func() error{}

	// storage
	var (
		users    user.Repository
		sessions user.SessionStore
	)

	switch cfg.Storage {
	case "memory":
		log.Warn("using in-memory storage; data is lost on restart")
		users = memory.NewUsersRepo()
		sessions = memory.NewSessionsRepo()
	default:
		if cfg.AutoMigrate {
			if err := db.Migrate(cfg.DBURL, "up"); err != nil {
				log.Error("migration failed", "err", err)
				os.Exit(1)
			}
		}

		pool, err := db.NewPool(db.PoolConfig{URL: cfg.DBURL, MaxConns: cfg.DBMaxConns})
		if err != nil {
			log.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		readyChecks["postgres"] = func() error {
			ctx, cancel := config.WithTimeout(1 * time.Second)
			defer cancel()
			return pool.Ping(ctx)
		}

		users = postgres.NewUsersRepo(pool, prom)
		sessions = postgres.NewRefreshTokensRepo(pool, prom)
	}

	// login throttle: redis when configured, otherwise per-process
	var limiter ratelimit.Limiter = ratelimit.NewMemory(cfg.LoginRateLimit, cfg.LoginRateWindow())

	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		readyChecks["redis"] = func() error {
			ctx, cancel := config.WithTimeout(1 * time.Second)
			defer cancel()
			return rdb.Ping(ctx)
		}

		limiter = ratelimit.NewRedis(rdb.Raw(), serviceName+":login:", cfg.LoginRateLimit, cfg.LoginRateWindow())
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())

	svc := service.NewUserService(service.Deps{
		Users:    users,
		Sessions: sessions,
		Hasher:   security.NewBcryptHasher(cfg.BcryptCost),
		IDs:      security.NewULIDGenerator(),
		Tokens:   tokens,
		Metrics:  prom,
	})

	seedCtx, cancelSeed := config.WithTimeout(5 * time.Second)
	err = db.EnsureAdminUser(seedCtx, svc, cfg)
	cancelSeed()
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	// set up routers
	router := httpx.NewRouter(httpx.RouterDeps{
		Env:            cfg.Env,
		ServiceName:    serviceName,
		Users:          svc,
		Tokens:         tokens,
		LoginLimiter:   limiter,
		Prom:           prom,
		ReadyChecks:    readyChecks,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Tracing:        cfg.OTelEnabled,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "storage", cfg.Storage)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("server shutting down")
	case err := <-serverErr:
		log.Error("server failed", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}

	log.Info("shutdown complete")
}
