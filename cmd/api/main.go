// Command api runs the job board backend.
//
// Every shared component (pool, batcher, cache, rate limiters) is
// constructed exactly once here and injected downward. There are no
// module-level singletons: the process-wide lifecycle is create at
// startup, tear down at shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"jobboard-backend/internal/clock"
	"jobboard-backend/internal/config"
	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/infrastructure/persistence"
	"jobboard-backend/internal/interfaces/http/handlers"
	"jobboard-backend/internal/middleware"
	"jobboard-backend/internal/observability"
	"jobboard-backend/internal/repository"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Environment)
	defer logger.Sync()
	logger.Info("starting job board backend",
		zap.String("environment", string(cfg.Environment)),
		zap.Strings("config_sources", cfg.LoadedFrom),
	)

	clk := clock.New()
	collector := observability.NewCollector("jobboard")

	ctx := context.Background()
	factory := repository.NewSupabaseConnectionFactory(cfg.Supabase)
	pool, err := persistence.NewPool(ctx, factory, persistence.PoolConfig{
		MinConnections: cfg.Pool.MinConnections,
		MaxConnections: cfg.Pool.MaxConnections,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
	}, clk, logger)
	if err != nil {
		logger.Fatal("failed to create connection pool", zap.Error(err))
	}

	batcher := persistence.NewBatcher(pool, persistence.BatcherConfig{
		BatchSize:      cfg.Batcher.BatchSize,
		BatchTimeout:   cfg.Batcher.BatchTimeout,
		YieldDelay:     cfg.Batcher.YieldDelay,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
	}, clk, logger)

	queryCache := cache.NewQueryCache(cfg.Cache.Capacity, clk, logger)

	generalLimiter := middleware.NewRateLimiter(middleware.Policy{
		Name:        "general",
		Window:      cfg.RateLimits.General.Window,
		MaxRequests: cfg.RateLimits.General.MaxRequests,
	}, cfg.RateLimits.Capacity, clk, logger)
	strictLimiter := middleware.NewRateLimiter(middleware.Policy{
		Name:        "strict",
		Window:      cfg.RateLimits.Strict.Window,
		MaxRequests: cfg.RateLimits.Strict.MaxRequests,
		IPOnly:      true,
		FailClosed:  true,
	}, cfg.RateLimits.Capacity, clk, logger)
	formLimiter := middleware.NewRateLimiter(middleware.Policy{
		Name:        "form",
		Window:      cfg.RateLimits.Form.Window,
		MaxRequests: cfg.RateLimits.Form.MaxRequests,
	}, cfg.RateLimits.Capacity, clk, logger)
	limiters := []*middleware.RateLimiter{generalLimiter, strictLimiter, formLimiter}

	// Rate-limit policy numbers are safe to change at runtime; the config
	// watcher pushes them on file change.
	watcher := config.NewWatcher(os.Getenv("CONFIG_PATH"), logger)
	watcher.Subscribe(func(updated *config.Config) {
		generalLimiter.UpdatePolicy(updated.RateLimits.General.Window, updated.RateLimits.General.MaxRequests)
		strictLimiter.UpdatePolicy(updated.RateLimits.Strict.Window, updated.RateLimits.Strict.MaxRequests)
		formLimiter.UpdatePolicy(updated.RateLimits.Form.Window, updated.RateLimits.Form.MaxRequests)
	})
	if err := watcher.Start(); err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	}

	deps := repository.Deps{
		Pool:    pool,
		Batcher: batcher,
		Cache:   queryCache,
		TTL:     cfg.Cache,
		Logger:  logger,
	}
	applications := repository.NewApplicationRepository(deps)
	jobs := repository.NewJobRepository(deps)

	jobsHandler := handlers.NewJobsHandler(jobs, logger)
	applicationsHandler := handlers.NewApplicationsHandler(applications, logger)
	adminHandler := handlers.NewAdminHandler(applications, jobs, logger)
	stats := handlers.StatsProvider{Pool: pool, Batcher: batcher, Cache: queryCache, Limiters: limiters}

	router := newRouter(cfg, logger, collector, jobsHandler, applicationsHandler, adminHandler, stats,
		generalLimiter, strictLimiter, formLimiter)

	refreshDone := startMetricsRefresh(collector, stats)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	watcher.Stop()
	close(refreshDone)
	batcher.Close()
	pool.CloseAll()
	logger.Info("stopped")
}

func newRouter(
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
	jobsHandler *handlers.JobsHandler,
	applicationsHandler *handlers.ApplicationsHandler,
	adminHandler *handlers.AdminHandler,
	stats handlers.StatsProvider,
	general, strict, form *middleware.RateLimiter,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout, logger))

	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", collector.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(general))
		r.Use(collector.Instrument("jobs"))
		r.Get("/api/jobs", jobsHandler.List)
		r.Get("/api/jobs/{jobId}", jobsHandler.Get)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(form))
		r.Use(collector.Instrument("applications"))
		r.Post("/api/applications", applicationsHandler.Submit)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RateLimit(strict))
		r.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("admin"), logger))
		r.Use(collector.Instrument("admin"))
		r.Get("/applications", adminHandler.ListApplications)
		r.Get("/applications/count", adminHandler.CountApplications)
		r.Post("/applications/{applicationId}/approve", adminHandler.ApproveApplication)
		r.Post("/applications/{applicationId}/reject", adminHandler.RejectApplication)
		r.Post("/jobs", adminHandler.CreateJob)
		r.Put("/jobs/{jobId}", adminHandler.UpdateJob)
		r.Delete("/jobs/{jobId}", adminHandler.DeleteJob)
		r.Get("/stats", stats.Stats)
	})

	return r
}

// startMetricsRefresh copies snapshots into the prometheus gauges on an
// interval so scrapes see fresh numbers without holding component locks.
func startMetricsRefresh(collector *observability.Collector, stats handlers.StatsProvider) chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiters := make([]middleware.RateLimiterStats, 0, len(stats.Limiters))
				for _, rl := range stats.Limiters {
					limiters = append(limiters, rl.Stats())
				}
				collector.Refresh(stats.Pool.Stats(), stats.Batcher.Stats(), stats.Cache.Stats(), limiters)
			case <-done:
				return
			}
		}
	}()
	return done
}

func newLogger(env config.Environment) *zap.Logger {
	var logger *zap.Logger
	var err error
	if strings.EqualFold(string(env), string(config.Production)) {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
