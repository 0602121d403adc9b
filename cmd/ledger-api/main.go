package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/config"
	"invoice-financing/ledger-backend/internal/dashboard"
	"invoice-financing/ledger-backend/internal/financing"
	"invoice-financing/ledger-backend/internal/notifications/websocket"
	"invoice-financing/ledger-backend/internal/observability"
	"invoice-financing/ledger-backend/internal/scheduler"
	"invoice-financing/ledger-backend/internal/storage"
)

// Maintenance job names
const (
	jobSnapshot     = "snapshot"
	jobRefreshStats = "refresh-stats"
)

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.json"
	}
	configPath := flag.String("config", defaultPath, "path to the JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open ledger store", zap.Error(err))
	}
	defer closeStore()

	var metrics *observability.LedgerMetrics
	if cfg.Monitoring.MetricsEnabled {
		metrics, err = observability.NewLedgerMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			logger.Fatal("Failed to register metrics", zap.Error(err))
		}
	}

	// Initialize ledger modules
	cache := dashboard.NewAggregateCache(cfg.Ledger.StatsCacheTTL)
	defer cache.Stop()
	sockets := websocket.NewManager(logger)
	defer sockets.Close()

	queries := financing.NewQueries(store, cache, logger, financing.QueryOptions{
		ActivityLimit:    cfg.Ledger.RecentActivityLimit,
		MaxActivityLimit: cfg.Ledger.MaxActivityLimit,
		Metrics:          metrics,
	})
	directory := financing.NewDirectory(store, logger)
	registry := financing.NewRegistry(store, directory, logger, financing.Options{
		PageSize: cfg.Ledger.PageSize,
		Events:   financing.Fanout{queries, sockets},
		Metrics:  metrics,
	})
	ledger := financing.NewLedger(registry, logger)
	handler := financing.NewHandler(registry, ledger, queries, cfg.Security.AdminToken, logger)

	if cfg.Security.AdminToken == "" {
		logger.Warn("No admin token configured, admin routes are disabled")
	}

	if cfg.Ledger.SeedDemoData {
		seeded, err := financing.SeedDemoData(ctx, registry, ledger, logger)
		if err != nil {
			logger.Fatal("Failed to seed demo data", zap.Error(err))
		}
		if !seeded {
			logger.Info("Ledger already holds data, skipping demo seed")
		}
	}

	jobs, err := newMaintenance(cfg, store, queries, logger)
	if err != nil {
		logger.Fatal("Failed to schedule maintenance jobs", zap.Error(err))
	}
	if err := jobs.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Setup Router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(routerDeps{
		handler:        handler,
		sockets:        sockets,
		metricsEnabled: cfg.Monitoring.MetricsEnabled,
		logger:         logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", srv.Addr),
		zap.String("driver", cfg.Database.Driver),
	)

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	jobs.Stop()
	if cfg.Snapshot.Path != "" {
		if _, err := storage.Save(shutdownCtx, store, cfg.Snapshot.Path); err != nil {
			logger.Error("Final snapshot failed", zap.Error(err))
		} else {
			logger.Info("Final snapshot written", zap.String("path", cfg.Snapshot.Path))
		}
	}

	logger.Info("Server exiting")
}

// newMaintenance registers the periodic snapshot and the gauge refresh
func newMaintenance(cfg *config.Config, store financing.Store, queries *financing.Queries, logger *zap.Logger) (*scheduler.ScheduleManager, error) {
	jobs := scheduler.NewScheduleManager(logger, time.Minute)

	if cfg.Snapshot.Path != "" && cfg.Snapshot.Schedule != "" {
		err := jobs.Add(jobSnapshot, cfg.Snapshot.Schedule, func(ctx context.Context) error {
			snap, err := storage.Save(ctx, store, cfg.Snapshot.Path)
			if err != nil {
				return err
			}
			logger.Debug("Snapshot written",
				zap.String("path", cfg.Snapshot.Path),
				zap.Int("invoices", len(snap.Invoices)),
			)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Monitoring.MetricsEnabled && cfg.Monitoring.RefreshSchedule != "" {
		if err := jobs.Add(jobRefreshStats, cfg.Monitoring.RefreshSchedule, queries.RefreshStats); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}
