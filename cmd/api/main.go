package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/app/migrate"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/archive"
	httpx "github.com/Deployment-Dashboard/Deployment-Dashboard/internal/http"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository/memory"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository/postgres"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/app"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/deploy"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/environment"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/release"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/version"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/ws"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/config"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/logger"
)

func main() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	if cfg.AutoMaxProcs {
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			log.Info(fmt.Sprintf(format, args...))
		})); err != nil {
			log.Error("failed to set maxprocs", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, counters, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer redisClient.Close()
	}
	if cfg.ArchiveCounters == config.CountersRedis {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Error("redis unavailable for archive counters", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		counters = archive.NewRedisCounters(redisClient, "", log)
	}

	apps := app.New(store, counters, log)
	envs := environment.New(store, apps, log)
	versions := version.New(store, apps, log)
	ledger := deploy.New(store, store, log)

	tickets, err := httpx.ParseTicketProtocols(cfg.TicketProtocols)
	if err != nil {
		log.Error("invalid TICKET_PROTOCOLS", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub()
	defer hub.Close()
	releases := release.New(store, apps, envs, versions, ledger, log).
		WithPublisher(httpx.NewEventPublisher(hub, tickets, log))

	limiter := httpx.NewMemoryRateLimiter()
	if redisClient != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = httpx.NewRedisRateLimiterFromClient(redisClient, log)
		}
	}

	router := httpx.NewRouter(log, httpx.Services{
		Apps:     apps,
		Envs:     envs,
		Versions: versions,
		Releases: releases,
	}, httpx.Options{
		Limiter:    limiter,
		ReadLimit:  cfg.RateLimitRead,
		WriteLimit: cfg.RateLimitWrite,
		Tickets:    tickets,
		Health:     store.Ping,
		Hub:        hub,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
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

// openStore returns the configured store and the archive counters it carries.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, archive.Counters, error) {
	if cfg.StoreDriver == config.DriverMemory {
		store, err := memory.New()
		if err != nil {
			return nil, nil, err
		}
		log.Warn("using in-memory store, data is lost on restart")
		return store, store, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("configure migrations: %w", err)
	}
	if err := runner.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("database ping: %w", err)
	}
	if cfg.AutoMigrate {
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
	}
	repo := postgres.New(pool)
	return repo, repo, nil
}
