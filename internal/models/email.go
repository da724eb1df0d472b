package models

import "time"

type EmailStatus string

const (
	StatusPending EmailStatus = "pending"
	StatusSent    EmailStatus = "sent"
	StatusFailed  EmailStatus = "failed"
	StatusSkipped EmailStatus = "skipped"
)

func (s EmailStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Terminal reports whether no further processing happens for the status.
func (s EmailStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusSkipped
}

// EmailQueueEntry is the email-queue view of one CV submission row.
// Recipient fields are read-only for the queue.
type EmailQueueEntry struct {
	SubmissionID int64 `json:"submission_id"`

	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Industry string `json:"industry,omitempty"`

	ScheduledAt   *time.Time  `json:"email_scheduled_at"`
	Status        EmailStatus `json:"email_status"`
	Attempts      int         `json:"email_attempts"`
	LastAttemptAt *time.Time  `json:"email_last_attempt_at"`
	SentAt        *time.Time  `json:"email_sent_at"`
	Error         *string     `json:"email_error"`
	OpenedAt      *time.Time  `json:"email_opened_at"`
}

// EntryUpdate is a partial update of the email-queue fields of a submission.
// Nil fields are left untouched.
type EntryUpdate struct {
	Status        *EmailStatus
	Attempts      *int
	LastAttemptAt *time.Time
	SentAt        *time.Time
	ScheduledAt   *time.Time
	Error         *string
	ClearError    bool

	// ExpectStatus guards the write: the row is only updated while it
	// still has this status. Empty means unguarded.
	ExpectStatus EmailStatus
	// ExpectAttempts additionally requires the attempt counter to still
	// hold this value, so two writers cannot claim the same attempt.
	ExpectAttempts *int
}

func (u EntryUpdate) Empty() bool {
	return u.Status == nil && u.Attempts == nil && u.LastAttemptAt == nil &&
		u.SentAt == nil && u.ScheduledAt == nil && u.Error == nil && !u.ClearError
}

// TemplateData is handed to the transport to render the follow-up email.
type TemplateData map[string]interface{}

// CycleSummary reports the outcome of one processing cycle.
type CycleSummary struct {
	CycleID      string        `json:"cycle_id"`
	Attempted    int           `json:"attempted"`
	Sent         int           `json:"sent"`
	Failed       int           `json:"failed"`
	StillPending int           `json:"still_pending"`
	Skipped      int           `json:"skipped"`
	Duration     time.Duration `json:"duration"`
}

type QueueStats struct {
	ByStatus map[EmailStatus]int64 `json:"by_status"`
	Due      int64                 `json:"due"`
	Opened   int64                 `json:"opened"`
}

func StatusPtr(s EmailStatus) *EmailStatus { return &s }
