package db

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

// PgxPool is the part of *pgxpool.Pool the store uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// PostgresStore serves deployments that keep submissions in PostgreSQL.
type PostgresStore struct {
	Pool PgxPool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgres(ctx context.Context, conn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: open pool")
	}

	return &PostgresStore{Pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.Pool.Close()
}

func (s *PostgresStore) SelectDueEmailEntries(ctx context.Context, now time.Time, limit int) ([]models.EmailQueueEntry, error) {
	rows, err := s.Pool.Query(ctx, rebind(selectDueQuery), string(models.StatusPending), now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: select due entries")
	}
	defer rows.Close()

	entries := make([]models.EmailQueueEntry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: scan due entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: iterate due entries")
	}

	return entries, nil
}

func (s *PostgresStore) UpdateEmailEntry(ctx context.Context, submissionID int64, upd models.EntryUpdate) error {
	if upd.Empty() {
		return nil
	}

	q, args := buildUpdate(submissionID, upd)
	tag, err := s.Pool.Exec(ctx, rebind(q), args...)
	if err != nil {
		return errors.Wrapf(err, "postgres: update email entry %d", submissionID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	st, found, err := s.state(ctx, submissionID)
	if err != nil {
		return err
	}
	return resolveNoRows(found, st, upd)
}

func (s *PostgresStore) ScheduleEmail(ctx context.Context, submissionID int64, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, rebind(scheduleQuery),
		at,
		string(models.StatusPending),
		submissionID,
		string(models.StatusSent),
	)
	if err != nil {
		return errors.Wrapf(err, "postgres: schedule email %d", submissionID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	st, found, err := s.state(ctx, submissionID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if models.EmailStatus(st.status.String) == models.StatusSent {
		return ErrAlreadySent
	}
	return nil
}

func (s *PostgresStore) MarkOpened(ctx context.Context, submissionID int64, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, rebind(markOpenedQuery), at, submissionID)
	if err != nil {
		return errors.Wrapf(err, "postgres: mark opened %d", submissionID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	st, found, err := s.state(ctx, submissionID)
	if err != nil {
		return err
	}
	return resolveNoRows(found, st, models.EntryUpdate{})
}

func (s *PostgresStore) QueueStats(ctx context.Context, now time.Time) (models.QueueStats, error) {
	stats := models.QueueStats{ByStatus: make(map[models.EmailStatus]int64)}

	rows, err := s.Pool.Query(ctx, countByStatusQuery)
	if err != nil {
		return stats, errors.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, errors.Wrap(err, "postgres: scan status count")
		}
		stats.ByStatus[models.EmailStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, errors.Wrap(err, "postgres: iterate status counts")
	}

	err = s.Pool.QueryRow(ctx, rebind(countDueQuery), string(models.StatusPending), now).Scan(&stats.Due)
	if err != nil {
		return stats, errors.Wrap(err, "postgres: count due")
	}

	err = s.Pool.QueryRow(ctx, countOpenedQuery).Scan(&stats.Opened)
	if err != nil {
		return stats, errors.Wrap(err, "postgres: count opened")
	}

	return stats, nil
}

func (s *PostgresStore) state(ctx context.Context, submissionID int64) (rowState, bool, error) {
	var st rowState

	err := s.Pool.QueryRow(ctx, rebind(selectStateQuery), submissionID).Scan(&st.status, &st.attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, false, nil
	}
	if err != nil {
		return st, false, errors.Wrapf(err, "postgres: load state %d", submissionID)
	}
	return st, true, nil
}
