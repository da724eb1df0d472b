package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/config"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/db"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/email"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/worker"
)

// openStore connects to the configured database, retrying until it answers.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (db.Store, error) {
	store, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.Info("database connected", zap.String("driver", cfg.DBDriver))
	return store, nil
}

func newTransport(ctx context.Context, cfg *config.Config) (email.Transport, error) {
	renderer, err := email.NewRenderer(cfg.TemplateDir, cfg.EmailTemplate, cfg.EmailSubject)
	if err != nil {
		return nil, err
	}

	switch cfg.EmailProvider {
	case "ses":
		return email.NewSESSender(ctx, cfg.AWSRegion, cfg.EmailFrom, renderer)
	default:
		return &email.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			Renderer: renderer,
		}, nil
	}
}

func newProcessor(ctx context.Context, cfg *config.Config, store db.Store, log *zap.Logger) (*worker.Processor, error) {
	sender, err := newTransport(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("email transport: %w", err)
	}

	// ------------------------------------------------
	// Rate Limiter
	// ------------------------------------------------
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	return worker.NewProcessor(store, sender, limiter, log, worker.ProcessorConfig{
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    cfg.BatchSize,
		RetryBackoff: cfg.RetryBackoff,
		SendTimeout:  cfg.SendTimeout,
		TrackingURL:  cfg.TrackingURL,
	})
}

// newLocker returns a Redis-backed lock when REDIS_URL is set. The returned
// close func is never nil.
func newLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (worker.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return worker.NewLocalLocker(), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Info("using redis cycle lock", zap.String("key", cfg.LockKey), zap.Duration("ttl", cfg.LockTTL))

	return worker.NewRedisLocker(client, cfg.LockKey, cfg.LockTTL, log), func() { _ = client.Close() }, nil
}
