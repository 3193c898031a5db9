package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devrev/dispatchboard/internal/health"
	"github.com/devrev/dispatchboard/internal/metrics"
	"github.com/devrev/dispatchboard/internal/server"
	"github.com/devrev/dispatchboard/internal/service"
	"github.com/devrev/dispatchboard/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ensureSchema bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch board HTTP API",
	RunE:  serve,
}

func init() {
	serveCmd.Flags().BoolVar(&ensureSchema, "ensure-schema", false, "apply the database schema before serving")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting dispatch board",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	boardStore, err := store.NewBoardStore(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open board store: %w", err)
	}
	defer boardStore.Close()

	if ensureSchema {
		if err := boardStore.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	cache, err := store.NewBoardCache(cfg.Cache, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("open board cache: %w", err)
	}
	defer cache.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	engine := service.NewAssignmentService(boardStore, cache, m, service.Options{
		CacheTTL:              cfg.Cache.TTL,
		EnforceCapacityOnEdit: cfg.Board.EnforceCapacityOnEdit,
	}, logger)

	healthCheck := health.NewHealthCheck(map[string]health.Pinger{
		"database": boardStore,
		"cache":    cache,
	}, 2*time.Second, logger)

	httpServer := server.NewServer(cfg, engine, healthCheck, m, logger)

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, m, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	if metricsServer != nil {
		g.Go(metricsServer.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", zap.Error(err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}

	logger.Info("dispatch board shutdown complete")
	return nil
}
