package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

func TestBuildUpdate(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempts := 2
	prevAttempts := 1
	msg := "mailbox full"

	tests := []struct {
		name      string
		upd       models.EntryUpdate
		wantQuery string
		wantArgs  []interface{}
	}{
		{
			name: "attempt write guarded on pending",
			upd: models.EntryUpdate{
				Attempts:      &attempts,
				LastAttemptAt: &now,
				ExpectStatus:  models.StatusPending,
			},
			wantQuery: "UPDATE cv_submissions SET email_attempts = ?, email_last_attempt_at = ? WHERE id = ? AND email_status = ?",
			wantArgs:  []interface{}{2, now, int64(7), "pending"},
		},
		{
			name: "attempt write guarded on counter",
			upd: models.EntryUpdate{
				Attempts:       &attempts,
				LastAttemptAt:  &now,
				ExpectStatus:   models.StatusPending,
				ExpectAttempts: &prevAttempts,
			},
			wantQuery: "UPDATE cv_submissions SET email_attempts = ?, email_last_attempt_at = ? WHERE id = ? AND email_status = ? AND email_attempts = ?",
			wantArgs:  []interface{}{2, now, int64(7), "pending", 1},
		},
		{
			name: "sent clears error",
			upd: models.EntryUpdate{
				Status:     models.StatusPtr(models.StatusSent),
				SentAt:     &now,
				ClearError: true,
			},
			wantQuery: "UPDATE cv_submissions SET email_status = ?, email_sent_at = ?, email_error = NULL WHERE id = ?",
			wantArgs:  []interface{}{"sent", now, int64(7)},
		},
		{
			name: "failure with reschedule",
			upd: models.EntryUpdate{
				ScheduledAt: &now,
				Error:       &msg,
			},
			wantQuery: "UPDATE cv_submissions SET email_scheduled_at = ?, email_error = ? WHERE id = ?",
			wantArgs:  []interface{}{now, "mailbox full", int64(7)},
		},
		{
			name: "error wins over clear",
			upd: models.EntryUpdate{
				Error:      &msg,
				ClearError: true,
			},
			wantQuery: "UPDATE cv_submissions SET email_error = ? WHERE id = ?",
			wantArgs:  []interface{}{"mailbox full", int64(7)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := buildUpdate(7, tt.upd)
			assert.Equal(t, tt.wantQuery, q)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRebind(t *testing.T) {
	assert.Equal(t,
		"UPDATE cv_submissions SET email_status = $1 WHERE id = $2 AND email_status = $3",
		rebind("UPDATE cv_submissions SET email_status = ? WHERE id = ? AND email_status = ?"),
	)
	assert.Equal(t, countOpenedQuery, rebind(countOpenedQuery))
}

func TestResolveNoRows(t *testing.T) {
	pending := rowState{status: nullString("pending"), attempts: 1}
	sent := rowState{status: nullString("sent"), attempts: 1}
	guarded := models.EntryUpdate{ExpectStatus: models.StatusPending}

	zero, one, two := 0, 1, 2
	claim := models.EntryUpdate{Attempts: &one, ExpectStatus: models.StatusPending, ExpectAttempts: &zero}
	alreadyClaimed := models.EntryUpdate{Attempts: &two, ExpectStatus: models.StatusPending, ExpectAttempts: &one}

	assert.ErrorIs(t, resolveNoRows(false, pending, models.EntryUpdate{}), ErrNotFound)
	assert.ErrorIs(t, resolveNoRows(true, sent, guarded), ErrStatusConflict)
	assert.NoError(t, resolveNoRows(true, pending, guarded))
	assert.NoError(t, resolveNoRows(true, sent, models.EntryUpdate{}))

	// counter already holds the value this write sets: unchanged row
	assert.NoError(t, resolveNoRows(true, pending, claim))
	// another writer moved the counter past the expected value
	assert.ErrorIs(t, resolveNoRows(true, rowState{status: nullString("pending"), attempts: 3}, alreadyClaimed), ErrStatusConflict)
}

func TestScheduleQuery_OnlySentIsFinal(t *testing.T) {
	assert.Contains(t, scheduleQuery, "(email_status IS NULL OR email_status <> ?)")
	assert.NotContains(t, scheduleQuery, "email_attempts")
	assert.NotContains(t, scheduleQuery, "email_error")
}
