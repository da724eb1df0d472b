package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/api"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/config"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/metrics"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfg **config.Config, log **zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the admin API and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfg, *log)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// ------------------------------------------------
	// Queue Processor + Scheduler
	// ------------------------------------------------
	proc, err := newProcessor(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	scheduler, err := worker.NewScheduler(proc, cfg.Interval(), logger, worker.WithLocker(locker))
	if err != nil {
		return err
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiServer := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           api.NewHandler(store, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := scheduler.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		return listen(metricsServer)
	})

	g.Go(func() error {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		return listen(apiServer)
	})

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// the in-flight cycle finishes before the store is closed
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("scheduler stop timed out", zap.Error(err))
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("application shutdown complete")
	return err
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
