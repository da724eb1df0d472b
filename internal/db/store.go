package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

var (
	ErrNotFound       = errors.New("submission not found")
	ErrStatusConflict = errors.New("email status changed concurrently")
	ErrAlreadySent    = errors.New("follow-up email already sent")
)

// Store is the submission table as seen by the email queue, the admin API
// and the CLI.
type Store interface {
	SelectDueEmailEntries(ctx context.Context, now time.Time, limit int) ([]models.EmailQueueEntry, error)
	UpdateEmailEntry(ctx context.Context, submissionID int64, upd models.EntryUpdate) error
	// ScheduleEmail puts any entry except a sent one back to pending at the
	// given time. Attempts are kept, so a failed entry gets one more try.
	ScheduleEmail(ctx context.Context, submissionID int64, at time.Time) error
	MarkOpened(ctx context.Context, submissionID int64, at time.Time) error
	QueueStats(ctx context.Context, now time.Time) (models.QueueStats, error)
	Ping(ctx context.Context) error
	Close()
}

// Open connects to the configured driver and waits, with exponential
// backoff, until the database answers a ping.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch driver {
	case "mysql":
		store, err = NewMySQL(dsn)
	case "postgres":
		store, err = NewPostgres(ctx, dsn)
	default:
		return nil, errors.Newf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	err = backoff.RetryNotify(
		func() error { return store.Ping(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, wait time.Duration) {
			logger.Warn("database not ready, retrying",
				zap.String("driver", driver),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	)
	if err != nil {
		store.Close()
		return nil, errors.Wrapf(err, "%s: database unreachable", driver)
	}

	return store, nil
}
