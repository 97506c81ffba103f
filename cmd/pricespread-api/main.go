package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/price-spread/internal/api"
	"github.com/maltedev/price-spread/internal/app"
	"github.com/maltedev/price-spread/internal/config"
	"github.com/maltedev/price-spread/internal/database"
	"github.com/maltedev/price-spread/internal/jobs"
	"github.com/maltedev/price-spread/internal/notify"
	"github.com/maltedev/price-spread/internal/queue"
	"github.com/maltedev/price-spread/internal/session"
	"github.com/maltedev/price-spread/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := session.NewMetrics(reg)

	checks := make(map[string]api.HealthCheck)

	var store jobs.Store = jobs.NewMemoryStore()
	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{DSN: cfg.Database.DSN(), MaxConns: cfg.Database.MaxConns})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		runs := database.NewRunRepository(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		store = jobs.NewDBStore(runs)
		checks["database"] = db.Ping
	}

	var messages notify.MessageLog = notify.NewMemoryLog()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		messages = notify.NewRedisLog(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	q := queue.NewInMemoryQueue(cfg.Jobs.QueueSize)
	runner := app.NewRunner(cfg, metrics, logger)
	manager := jobs.NewManager(store, q, runner, messages, cfg.Jobs.Workers, logger)

	limiter := rate.NewLimiter(rate.Limit(1), cfg.Jobs.Workers)
	handlers := api.NewHandlers(manager, runner.Marketplaces(), limiter, checks, logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Server.AllowedOrigins, reg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		q.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
