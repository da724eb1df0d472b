package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/db"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/email"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/metrics"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

// Store is the part of the submission store the processor depends on.
type Store interface {
	SelectDueEmailEntries(ctx context.Context, now time.Time, limit int) ([]models.EmailQueueEntry, error)
	UpdateEmailEntry(ctx context.Context, submissionID int64, upd models.EntryUpdate) error
}

type ProcessorConfig struct {
	MaxAttempts int
	BatchSize   int

	// RetryBackoff > 0 pushes the schedule of a failed, still pending
	// entry to now + RetryBackoff * 2^(attempts-1).
	RetryBackoff time.Duration
	SendTimeout  time.Duration

	// TrackingURL is the public base URL of the API serving the open pixel.
	TrackingURL string
}

type Processor struct {
	store   Store
	sender  email.Transport
	limiter *rate.Limiter
	logger  *zap.Logger
	cfg     ProcessorConfig
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeRetry
	outcomeFailed
)

// NewProcessor wires a processor. A nil limiter means unthrottled sends.
func NewProcessor(
	store Store,
	sender email.Transport,
	limiter *rate.Limiter,
	logger *zap.Logger,
	cfg ProcessorConfig,
) (*Processor, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Processor{
		store:   store,
		sender:  sender,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Process runs one cycle: due entries are attempted oldest first, each
// outcome is written before the next entry is touched. Transport failures
// stay on the entry; store failures abort the cycle.
func (p *Processor) Process(ctx context.Context, now time.Time) (models.CycleSummary, error) {
	start := time.Now()
	var summary models.CycleSummary

	entries, err := p.store.SelectDueEmailEntries(ctx, now, p.cfg.BatchSize)
	if err != nil {
		summary.Duration = time.Since(start)
		return summary, &StoreError{Op: "select due entries", Err: err}
	}
	if len(entries) > p.cfg.BatchSize {
		entries = entries[:p.cfg.BatchSize]
	}

	for _, entry := range entries {
		if !due(entry, now) {
			p.logger.Warn("store returned an entry that is not due",
				zap.Int64("submission_id", entry.SubmissionID),
				zap.String("status", string(entry.Status)),
			)
			summary.Skipped++
			continue
		}

		result, err := p.processEntry(ctx, now, entry)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		switch result {
		case outcomeSkipped:
			summary.Skipped++
			continue
		case outcomeSent:
			summary.Sent++
		case outcomeRetry:
			summary.StillPending++
		case outcomeFailed:
			summary.Failed++
		}
		summary.Attempted++
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

func (p *Processor) processEntry(ctx context.Context, now time.Time, entry models.EmailQueueEntry) (outcome, error) {
	id := entry.SubmissionID

	// ----------------------------
	// Rate Limit
	// ----------------------------
	if err := p.limiter.Wait(ctx); err != nil {
		return outcomeSkipped, fmt.Errorf("rate limiter: %w", err)
	}

	// ----------------------------
	// Count the attempt before sending
	// ----------------------------
	prev := entry.Attempts
	attempts := prev + 1
	err := p.store.UpdateEmailEntry(ctx, id, models.EntryUpdate{
		Attempts:       &attempts,
		LastAttemptAt:  &now,
		ExpectStatus:   models.StatusPending,
		ExpectAttempts: &prev,
	})
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrStatusConflict) {
		p.logger.Warn("entry left the queue before its attempt",
			zap.Int64("submission_id", id),
			zap.Error(err),
		)
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, &StoreError{Op: "record attempt", SubmissionID: id, Err: err}
	}

	// ----------------------------
	// Send Email
	// ----------------------------
	sendErr := p.send(ctx, entry)

	if sendErr == nil {
		err := p.store.UpdateEmailEntry(ctx, id, models.EntryUpdate{
			Status:     models.StatusPtr(models.StatusSent),
			SentAt:     &now,
			ClearError: true,
		})
		if err != nil {
			return outcomeSkipped, &StoreError{Op: "record delivery", SubmissionID: id, Err: err}
		}

		p.logger.Info("follow-up email sent",
			zap.Int64("submission_id", id),
			zap.String("to", entry.Email),
			zap.Int("attempt", attempts),
		)
		metrics.EmailsSent.Inc()
		return outcomeSent, nil
	}

	// ----------------------------
	// Record Failure
	// ----------------------------
	msg := sendErr.Error()
	upd := models.EntryUpdate{Error: &msg}
	result := outcomeRetry

	if attempts >= p.cfg.MaxAttempts {
		upd.Status = models.StatusPtr(models.StatusFailed)
		result = outcomeFailed
	} else if p.cfg.RetryBackoff > 0 {
		next := now.Add(retryDelay(p.cfg.RetryBackoff, attempts))
		upd.ScheduledAt = &next
	}

	if err := p.store.UpdateEmailEntry(ctx, id, upd); err != nil {
		return outcomeSkipped, &StoreError{Op: "record failure", SubmissionID: id, Err: err}
	}

	p.logger.Warn("follow-up email failed",
		zap.Int64("submission_id", id),
		zap.String("to", entry.Email),
		zap.Int("attempt", attempts),
		zap.Int("max_attempts", p.cfg.MaxAttempts),
		zap.Bool("exhausted", result == outcomeFailed),
		zap.Error(&TransportError{SubmissionID: id, Err: sendErr}),
	)
	metrics.EmailFailures.Inc()
	if result == outcomeFailed {
		metrics.EmailsExhausted.Inc()
	}

	return result, nil
}

func (p *Processor) send(ctx context.Context, entry models.EmailQueueEntry) error {
	sendCtx := ctx
	if p.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, p.cfg.SendTimeout)
		defer cancel()
	}

	return p.sender.Send(sendCtx, entry.Email, p.templateData(entry))
}

func (p *Processor) templateData(entry models.EmailQueueEntry) models.TemplateData {
	data := models.TemplateData{
		"SubmissionID": entry.SubmissionID,
		"Email":        entry.Email,
		"FullName":     entry.FullName,
		"FirstName":    firstName(entry.FullName),
		"Industry":     entry.Industry,
	}

	if p.cfg.TrackingURL != "" {
		data["TrackingPixelURL"] = strings.TrimRight(p.cfg.TrackingURL, "/") +
			"/api/email/open/" + strconv.FormatInt(entry.SubmissionID, 10)
	}

	return data
}

func due(entry models.EmailQueueEntry, now time.Time) bool {
	return entry.Status == models.StatusPending &&
		entry.ScheduledAt != nil &&
		!entry.ScheduledAt.After(now)
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func retryDelay(base time.Duration, attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 24 * time.Hour
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
