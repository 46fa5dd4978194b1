package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/app/migrate"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/github"
	httpx "github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/http"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository/postgres"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/auth"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/installation"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/project"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/user"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/webhook"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/ws"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/logger"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/telemetry"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.Level(cfg.Debug))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Version, log)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	var (
		limiter httpx.RateLimiter = httpx.NewMemoryRateLimiter()
		tokens  github.TokenCache = github.NewMemoryTokenCache()
	)
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			log.Warn("invalid redis url, using in-process caches", "error", err)
		} else {
			client := redis.NewClient(opts)
			defer client.Close()
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := client.Ping(pingCtx).Err(); err != nil {
				log.Warn("redis unavailable, using in-process caches", "error", err)
			} else {
				limiter.Close()
				limiter = httpx.NewRedisRateLimiter(client, log)
				tokens = github.NewRedisTokenCache(client)
				log.Info("redis connected", "addr", opts.Addr)
			}
			cancel()
		}
	}

	gh, err := github.New(cfg, tokens, log)
	if err != nil {
		log.Error("failed to configure github app client", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(log)
	defer hub.Close()

	authSvc := auth.New(repo, log, cfg)
	userSvc := user.New(repo, repo, repo, repo, log, cfg)
	installSvc := installation.New(repo, repo, gh, log, cfg)
	projectSvc := project.New(repo, repo, repo, hub, log, cfg)
	webhookSvc := webhook.New(userSvc, installSvc, log, cfg)

	router := httpx.NewRouter(cfg, log, httpx.Services{
		Auth:          authSvc,
		Users:         userSvc,
		Installations: installSvc,
		Projects:      projectSvc,
		Webhooks:      webhookSvc,
	}, hub, limiter, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "environment", cfg.Environment, "version", cfg.Version)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
