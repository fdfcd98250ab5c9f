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

	"github.com/examdesk/examdesk/internal/accounts"
	"github.com/examdesk/examdesk/internal/app"
	"github.com/examdesk/examdesk/internal/authn"
	"github.com/examdesk/examdesk/internal/authz"
	"github.com/examdesk/examdesk/internal/observability"
	"github.com/examdesk/examdesk/internal/platform/cache"
	"github.com/examdesk/examdesk/internal/platform/db"
	"github.com/examdesk/examdesk/internal/roles"
	"github.com/examdesk/examdesk/internal/shared"
	"github.com/examdesk/examdesk/jobs"
)

// actorSource adapts the accounts service to the guard's view of an actor.
type actorSource struct {
	accounts *accounts.Service
}

func (s actorSource) LoadActor(ctx context.Context, id int64) (authz.Actor, error) {
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return authz.Actor{}, err
	}
	matrix, err := s.accounts.EffectivePermissions(ctx, acct)
	if err != nil {
		return authz.Actor{}, err
	}
	return authz.Actor{
		ID:             acct.ID,
		Classification: acct.Classification,
		Suspended:      acct.Suspended(),
		Permissions:    matrix,
	}, nil
}

// alertEnqueuer adapts the jobs client to the authn alert hook.
type alertEnqueuer struct {
	client *jobs.Client
}

func (e alertEnqueuer) EnqueueSecurityAlert(ctx context.Context, email, reason string) error {
	_, err := e.client.EnqueueSecurityAlert(ctx, jobs.SecurityAlertPayload{Email: email, Reason: reason})
	return err
}

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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, auditLogger, logger)

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, rolesService, auditLogger, logger)

	tokens := authn.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
	denylist := authn.NewDenylist(redisClient, cfg.TokenTTL)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	authService := authn.NewService(accountsService, tokens, denylist, alertEnqueuer{client: jobsClient}, auditLogger, metrics, logger)

	guard := authz.NewGuard(authz.GuardConfig{
		Tokens:             tokens,
		Actors:             actorSource{accounts: accountsService},
		Revoked:            denylist,
		Logger:             logger,
		SuperadminFallback: cfg.SuperadminFallback,
	})

	authHandler := authn.NewHandler(logger, authService, guard)
	accountsHandler := accounts.NewHandler(logger, accountsService, guard, authService)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     authHandler,
		AccountsHandler: accountsHandler,
		RolesHandler:    rolesHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
