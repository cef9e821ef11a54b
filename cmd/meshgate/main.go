package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/meshgate/meshgate/internal/accounts"
	"github.com/meshgate/meshgate/internal/app"
	"github.com/meshgate/meshgate/internal/audit"
	"github.com/meshgate/meshgate/internal/auth"
	"github.com/meshgate/meshgate/internal/authz"
	"github.com/meshgate/meshgate/internal/identity"
	"github.com/meshgate/meshgate/internal/mesh"
	"github.com/meshgate/meshgate/internal/observability"
	"github.com/meshgate/meshgate/internal/platform/db"
	"github.com/meshgate/meshgate/internal/rbac"
	"github.com/meshgate/meshgate/internal/upstream"
	"github.com/meshgate/meshgate/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	// A malformed role catalog is a configuration error; refuse to start.
	catalog := rbac.DefaultCatalog()
	if err := catalog.Validate(); err != nil {
		logger.Error("role catalog invalid", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := rbac.NewSeeder(pool).Seed(ctx, catalog); err != nil {
		logger.Error("seed role catalog", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(pool)
	auditRecorder := audit.NewRecorder(auditRepo, logger, metrics, jobClient)
	auditService := audit.NewService(auditRepo)

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, catalog, identity.DefaultGroupMap(), logger)

	tokens, err := auth.NewTokenManager(cfg.SessionSecret, cfg.SessionRefreshInterval)
	if err != nil {
		logger.Error("init token manager", slog.Any("error", err))
		os.Exit(1)
	}
	registry := auth.NewSessionRegistry(redisClient)
	authService := auth.NewService(tokens, registry, identityService, identityRepo, logger)
	authHandler := auth.NewHandler(logger, authService, audit.NewLoginTrail(auditRecorder), cfg.CallbackSecret)

	authzMW := authz.Middleware{Verifier: authService, Catalog: catalog, Logger: logger}

	gateway := upstream.NewClient(upstream.Config{
		BaseURL: cfg.UpstreamURL,
		APIKey:  cfg.UpstreamAPIKey,
		Timeout: cfg.UpstreamTimeout,
	})

	meshHandler := mesh.NewHandler(logger, gateway, auditRecorder, authzMW, metrics)
	accountsHandler := accounts.NewHandler(logger, identityService, auditRecorder, authzMW)
	auditHandler := audit.NewHandler(logger, auditService, authzMW)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     authHandler,
		MeshHandler:     meshHandler,
		AccountsHandler: accountsHandler,
		AuditHandler:    auditHandler,
		JobHandler:      jobHandler,
		AuthzMiddleware: authzMW,
		Pool:            pool,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
