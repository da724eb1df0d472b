package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/go-sql-driver/mysql"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

// MySQLStore is the submission store on the site's MySQL database.
// The DSN must carry parseTime=true so DATETIME columns scan into time.Time.
type MySQLStore struct {
	DB *sql.DB
}

var _ Store = (*MySQLStore)(nil)

func NewMySQL(dsn string) (*MySQLStore, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "mysql: open")
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	return &MySQLStore{DB: conn}, nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *MySQLStore) Close() {
	_ = s.DB.Close()
}

func (s *MySQLStore) SelectDueEmailEntries(ctx context.Context, now time.Time, limit int) ([]models.EmailQueueEntry, error) {
	rows, err := s.DB.QueryContext(ctx, selectDueQuery, string(models.StatusPending), now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "mysql: select due entries")
	}
	defer rows.Close()

	entries := make([]models.EmailQueueEntry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "mysql: scan due entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "mysql: iterate due entries")
	}

	return entries, nil
}

func (s *MySQLStore) UpdateEmailEntry(ctx context.Context, submissionID int64, upd models.EntryUpdate) error {
	if upd.Empty() {
		return nil
	}

	q, args := buildUpdate(submissionID, upd)
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrapf(err, "mysql: update email entry %d", submissionID)
	}

	return s.checkAffected(ctx, res, submissionID, upd)
}

func (s *MySQLStore) ScheduleEmail(ctx context.Context, submissionID int64, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, scheduleQuery,
		at,
		string(models.StatusPending),
		submissionID,
		string(models.StatusSent),
	)
	if err != nil {
		return errors.Wrapf(err, "mysql: schedule email %d", submissionID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "mysql: rows affected")
	}
	if n > 0 {
		return nil
	}

	// Nothing changed: the submission is gone, already sent, or was
	// rescheduled with identical values.
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

func (s *MySQLStore) MarkOpened(ctx context.Context, submissionID int64, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, markOpenedQuery, at, submissionID)
	if err != nil {
		return errors.Wrapf(err, "mysql: mark opened %d", submissionID)
	}

	return s.checkAffected(ctx, res, submissionID, models.EntryUpdate{})
}

func (s *MySQLStore) QueueStats(ctx context.Context, now time.Time) (models.QueueStats, error) {
	stats := models.QueueStats{ByStatus: make(map[models.EmailStatus]int64)}

	rows, err := s.DB.QueryContext(ctx, countByStatusQuery)
	if err != nil {
		return stats, errors.Wrap(err, "mysql: count by status")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, errors.Wrap(err, "mysql: scan status count")
		}
		stats.ByStatus[models.EmailStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, errors.Wrap(err, "mysql: iterate status counts")
	}

	err = s.DB.QueryRowContext(ctx, countDueQuery, string(models.StatusPending), now).Scan(&stats.Due)
	if err != nil {
		return stats, errors.Wrap(err, "mysql: count due")
	}

	err = s.DB.QueryRowContext(ctx, countOpenedQuery).Scan(&stats.Opened)
	if err != nil {
		return stats, errors.Wrap(err, "mysql: count opened")
	}

	return stats, nil
}

func (s *MySQLStore) checkAffected(ctx context.Context, res sql.Result, submissionID int64, upd models.EntryUpdate) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "mysql: rows affected")
	}
	if n > 0 {
		return nil
	}

	st, found, err := s.state(ctx, submissionID)
	if err != nil {
		return err
	}
	return resolveNoRows(found, st, upd)
}

func (s *MySQLStore) state(ctx context.Context, submissionID int64) (rowState, bool, error) {
	var st rowState

	err := s.DB.QueryRowContext(ctx, selectStateQuery, submissionID).Scan(&st.status, &st.attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return st, false, nil
	}
	if err != nil {
		return st, false, errors.Wrapf(err, "mysql: load state %d", submissionID)
	}
	return st, true, nil
}
