package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/config"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/logger"
)

func main() {
	var (
		cfg *config.Config
		log *zap.Logger
	)

	root := &cobra.Command{
		Use:           "email-queue",
		Short:         "CV follow-up email queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// ------------------------------------------------
			// Config
			// ------------------------------------------------
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}

			// ------------------------------------------------
			// Logger
			// ------------------------------------------------
			log, err = logger.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	root.AddCommand(
		newServeCmd(&cfg, &log),
		newProcessCmd(&cfg, &log),
		newScheduleCmd(&cfg, &log),
	)

	if err := root.Execute(); err != nil {
		if log != nil {
			log.Error("command failed", zap.Error(err))
			_ = log.Sync()
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
