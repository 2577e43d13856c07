package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"forkful.app/internal/audit"
	"forkful.app/internal/auth"
	"forkful.app/internal/config"
	"forkful.app/internal/httpapi"
	"forkful.app/internal/obs"
	"forkful.app/internal/ratelimit"
	"forkful.app/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "unknown"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("FORKFUL_CONFIG"), "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := obs.NewLogger(obs.LogConfig{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		Service: cfg.App.Name,
		Env:     cfg.App.Env,
		Version: version,
	})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.DB.DSN)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	codec, err := auth.NewCodec([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	if err != nil {
		logger.Fatal("build token codec", zap.Error(err))
	}

	auditLog := audit.New(logger)

	authSvc, err := auth.NewService(store.Users(), store.RefreshTokens(), codec,
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithLogger(logger),
		auth.WithAudit(auditLog),
		auth.WithReuseHook(obs.IncTokenReuse),
		auth.WithLoginFailureHook(obs.IncLoginFailure),
	)
	if err != nil {
		logger.Fatal("build auth service", zap.Error(err))
	}

	limiter, err := ratelimit.New(store.RateLimits(), cfg.RateLimit.Policies,
		ratelimit.WithRetention(cfg.RateLimit.Retention),
		ratelimit.WithLogger(logger),
		ratelimit.WithRejectHook(obs.IncRateLimited),
	)
	if err != nil {
		logger.Fatal("build rate limiter", zap.Error(err))
	}

	api := httpapi.New(httpapi.Options{
		Auth:          authSvc,
		Limiter:       limiter,
		Ready:         httpapi.ReadyProbe{DB: store.DB()},
		Logger:        logger,
		Version:       version,
		SessionCookie: cfg.Auth.SessionCookie,
		CookieSecure:  cfg.Auth.CookieSecure,
		PagePrefixes:  cfg.Gatekeeper.PagePrefixes,
		LoginPath:     cfg.Gatekeeper.LoginPath,
		CleanupToken:  cfg.Internal.CleanupToken,
	})

	handler := httpapi.MaxBodyBytes(api.Handler(), cfg.Server.MaxBodyBytes)
	handler = ratelimit.PerIP(handler, cfg.RateLimit.EdgePerSecond, cfg.RateLimit.EdgeBurst)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logger.Info("starting forkful-api", zap.String("addr", srv.Addr), zap.String("version", version))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	logger.Info("stopped")
}
