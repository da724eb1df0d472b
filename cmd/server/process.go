package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/config"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/worker"
)

func newProcessCmd(cfg **config.Config, log **zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run a single processing cycle and exit",
		Long: "Runs one email queue cycle under the cycle lock and exits. " +
			"Suitable for cron-style deployments; exits non-zero when the cycle fails.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return processOnce(cmd.Context(), *cfg, *log)
		},
	}
}

func processOnce(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

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

	_, err = scheduler.RunOnce(ctx)
	if errors.Is(err, worker.ErrCycleSkipped) {
		return nil
	}
	return err
}
