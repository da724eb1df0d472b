package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/config"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/csvparser"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/db"
)

func newScheduleCmd(cfg **config.Config, log **zap.Logger) *cobra.Command {
	var (
		delay   time.Duration
		maxRows int
	)

	cmd := &cobra.Command{
		Use:   "schedule <file.csv>",
		Short: "Schedule follow-up emails from a CSV of submission ids",
		Long: "Reads a CSV with a submission_id column and an optional scheduled_at " +
			"column (RFC3339). Rows without scheduled_at are scheduled now + --delay.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return scheduleFile(cmd.Context(), *cfg, *log, args[0], delay, maxRows)
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", 0, "delay for rows without scheduled_at")
	cmd.Flags().IntVar(&maxRows, "max-rows", 10000, "maximum number of rows to read")

	return cmd
}

func scheduleFile(ctx context.Context, cfg *config.Config, logger *zap.Logger, path string, delay time.Duration, maxRows int) error {
	rows, err := csvparser.ParseFile(path, maxRows, time.Now().Add(delay))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	scheduled, rejected := 0, 0
	for _, row := range rows {
		err := store.ScheduleEmail(ctx, row.SubmissionID, row.ScheduledAt)
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrAlreadySent) {
			logger.Warn("submission not scheduled",
				zap.Int64("submission_id", row.SubmissionID),
				zap.Error(err),
			)
			rejected++
			continue
		}
		if err != nil {
			return fmt.Errorf("schedule submission %d: %w", row.SubmissionID, err)
		}
		scheduled++
	}

	logger.Info("follow-up emails scheduled",
		zap.String("file", path),
		zap.Int("scheduled", scheduled),
		zap.Int("rejected", rejected),
	)
	return nil
}
