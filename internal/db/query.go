package db

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

// Queries are written with MySQL "?" placeholders; rebind converts them
// for PostgreSQL.

const entryColumns = `id, email, full_name, industry,
	email_scheduled_at, email_status, email_attempts,
	email_last_attempt_at, email_sent_at, email_error, email_opened_at`

const selectDueQuery = `SELECT ` + entryColumns + `
	FROM cv_submissions
	WHERE email_status = ?
	  AND email_scheduled_at IS NOT NULL
	  AND email_scheduled_at <= ?
	ORDER BY email_scheduled_at ASC, id ASC
	LIMIT ?`

const selectStateQuery = `SELECT email_status, email_attempts FROM cv_submissions WHERE id = ?`

const scheduleQuery = `UPDATE cv_submissions
	SET email_scheduled_at = ?, email_status = ?
	WHERE id = ? AND (email_status IS NULL OR email_status <> ?)`

const markOpenedQuery = `UPDATE cv_submissions
	SET email_opened_at = ?
	WHERE id = ? AND email_opened_at IS NULL`

const countByStatusQuery = `SELECT email_status, COUNT(*)
	FROM cv_submissions
	WHERE email_status IS NOT NULL
	GROUP BY email_status`

const countDueQuery = `SELECT COUNT(*)
	FROM cv_submissions
	WHERE email_status = ? AND email_scheduled_at IS NOT NULL AND email_scheduled_at <= ?`

const countOpenedQuery = `SELECT COUNT(*) FROM cv_submissions WHERE email_opened_at IS NOT NULL`

// buildUpdate renders the partial update of the email-queue fields.
// Only email_* columns are ever written.
func buildUpdate(submissionID int64, upd models.EntryUpdate) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)

	if upd.Status != nil {
		sets = append(sets, "email_status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Attempts != nil {
		sets = append(sets, "email_attempts = ?")
		args = append(args, *upd.Attempts)
	}
	if upd.LastAttemptAt != nil {
		sets = append(sets, "email_last_attempt_at = ?")
		args = append(args, *upd.LastAttemptAt)
	}
	if upd.SentAt != nil {
		sets = append(sets, "email_sent_at = ?")
		args = append(args, *upd.SentAt)
	}
	if upd.ScheduledAt != nil {
		sets = append(sets, "email_scheduled_at = ?")
		args = append(args, *upd.ScheduledAt)
	}
	switch {
	case upd.Error != nil:
		sets = append(sets, "email_error = ?")
		args = append(args, *upd.Error)
	case upd.ClearError:
		sets = append(sets, "email_error = NULL")
	}

	q := "UPDATE cv_submissions SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, submissionID)

	if upd.ExpectStatus != "" {
		q += " AND email_status = ?"
		args = append(args, string(upd.ExpectStatus))
	}
	if upd.ExpectAttempts != nil {
		q += " AND email_attempts = ?"
		args = append(args, *upd.ExpectAttempts)
	}

	return q, args
}

func rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)

	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (models.EmailQueueEntry, error) {
	var (
		e                                        models.EmailQueueEntry
		fullName, industry, status, emailErr     sql.NullString
		scheduledAt, lastAttempt, sentAt, opened sql.NullTime
	)

	err := row.Scan(
		&e.SubmissionID, &e.Email, &fullName, &industry,
		&scheduledAt, &status, &e.Attempts,
		&lastAttempt, &sentAt, &emailErr, &opened,
	)
	if err != nil {
		return e, err
	}

	e.FullName = fullName.String
	e.Industry = industry.String
	e.Status = models.EmailStatus(status.String)
	e.ScheduledAt = nullTimeToPtr(scheduledAt)
	e.LastAttemptAt = nullTimeToPtr(lastAttempt)
	e.SentAt = nullTimeToPtr(sentAt)
	e.OpenedAt = nullTimeToPtr(opened)
	if emailErr.Valid {
		e.Error = &emailErr.String
	}

	return e, nil
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// rowState is what a zero-rows UPDATE is resolved against.
type rowState struct {
	status   sql.NullString
	attempts int
}

// resolveNoRows explains why a guarded UPDATE touched nothing. MySQL also
// reports zero affected rows when the new values equal the old ones, so a
// row that exists and passes the guards is not an error.
func resolveNoRows(found bool, st rowState, upd models.EntryUpdate) error {
	if !found {
		return ErrNotFound
	}
	if upd.ExpectStatus != "" && models.EmailStatus(st.status.String) != upd.ExpectStatus {
		return ErrStatusConflict
	}
	if upd.ExpectAttempts != nil && st.attempts != *upd.ExpectAttempts {
		// the write itself sets the counter; already holding the new value
		// means an unchanged row, anything else another writer
		if upd.Attempts == nil || st.attempts != *upd.Attempts {
			return ErrStatusConflict
		}
	}
	return nil
}
