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
	"golang.org/x/sync/errgroup"

	"github.com/steepleworks/steeple/internal/app"
	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/auth"
	"github.com/steepleworks/steeple/internal/branches"
	"github.com/steepleworks/steeple/internal/impersonation"
	"github.com/steepleworks/steeple/internal/members"
	"github.com/steepleworks/steeple/internal/observability"
	"github.com/steepleworks/steeple/internal/platform/cache"
	"github.com/steepleworks/steeple/internal/platform/db"
	"github.com/steepleworks/steeple/internal/rbac"
	"github.com/steepleworks/steeple/internal/roles"
	"github.com/steepleworks/steeple/internal/tenants"
	"github.com/steepleworks/steeple/internal/users"
	"github.com/steepleworks/steeple/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	recorder := audit.NewRecorder(pool, logger)

	tenantsRepo := tenants.NewRepository(pool)
	revocations := impersonation.NewRevocationList(redisClient, logger)
	grants := impersonation.NewManager(cfg.ImpersonationSecret, cfg.ImpersonationTTL, tenantsRepo, revocations, recorder)

	verifier := auth.NewUserinfoVerifier(cfg.IDPUserinfoURL, "oidc", cfg.IDPVerifyTimeout)
	authRepo := auth.NewRepository(pool)
	resolver := auth.NewResolver(verifier, authRepo, grants, cfg.AdminEmails, logger)

	rbacMiddleware := rbac.Middleware{Logger: logger}

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

	jobInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobInspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()

	branchesRepo := branches.NewRepository(pool)
	branchesService := branches.NewService(branchesRepo, recorder)

	rolesService := roles.NewService(roles.NewRepository(pool), recorder)
	tenantsService := tenants.NewService(tenantsRepo, recorder)
	usersService := users.NewService(users.NewRepository(pool), branchesRepo, recorder, jobClient, logger)
	membersService := members.NewService(members.NewRepository(pool), branchesRepo, recorder)
	auditService := audit.NewService(audit.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Resolver:             resolver,
		AuthHandler:          auth.NewHandler(logger, resolver, grants),
		TenantsHandler:       tenants.NewHandler(logger, tenantsService, rbacMiddleware),
		ImpersonationHandler: impersonation.NewHandler(logger, grants, rbacMiddleware),
		BranchesHandler:      branches.NewHandler(logger, branchesService, rbacMiddleware),
		RolesHandler:         roles.NewHandler(logger, rolesService, rbacMiddleware),
		UsersHandler:         users.NewHandler(logger, usersService, rbacMiddleware),
		MembersHandler:       members.NewHandler(logger, membersService, rbacMiddleware),
		AuditHandler:         audit.NewHandler(logger, auditService, rbacMiddleware),
		PermissionsHandler:   rbac.NewPermissionsHandler(rbacMiddleware),
		JobHandler:           jobs.NewHandler(jobInspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
