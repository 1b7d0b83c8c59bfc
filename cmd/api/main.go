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

	"github.com/crewkit/crewkit/internal/app/migrate"
	"github.com/crewkit/crewkit/internal/events"
	httpx "github.com/crewkit/crewkit/internal/http"
	"github.com/crewkit/crewkit/internal/repository/postgres"
	"github.com/crewkit/crewkit/internal/service/activity"
	"github.com/crewkit/crewkit/internal/service/auth"
	"github.com/crewkit/crewkit/internal/service/project"
	"github.com/crewkit/crewkit/internal/service/realtime"
	"github.com/crewkit/crewkit/internal/service/task"
	"github.com/crewkit/crewkit/internal/service/team"
	"github.com/crewkit/crewkit/internal/ws"
	"github.com/crewkit/crewkit/pkg/config"
	"github.com/crewkit/crewkit/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	hub := ws.NewHub()
	emitter := events.NewRouter(hub, log)

	activitySvc := activity.New(repo, repo, repo, repo, log, cfg.ActivityRetention, cfg.ActivitySweepEvery, cfg.ActivityDefaultLimit)
	go activitySvc.Run(ctx)

	authSvc := auth.New(repo, activitySvc, log, cfg)
	teamSvc := team.New(repo, repo, activitySvc, emitter, log)
	projectSvc := project.New(repo, repo, repo, repo, activitySvc, emitter, log)
	taskSvc := task.New(repo, repo, repo, repo, repo, activitySvc, emitter, log)
	realtimeSvc := realtime.New(repo, repo, repo, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, teamSvc, projectSvc, taskSvc, activitySvc, hub, realtimeSvc, limiter, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
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
