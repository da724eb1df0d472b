package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/csvparser"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/db"
)

const (
	statsCacheKey = "queue-stats"
	statsTTL      = 30 * time.Second
	maxBodyBytes  = 1 << 20
	maxCSVRows    = 1000
)

// 1x1 transparent GIF
var pixel, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

type Handler struct {
	Store db.Store
	Log   *zap.Logger
	Now   func() time.Time

	cache *gocache.Cache
}

func NewHandler(store db.Store, logger *zap.Logger) *Handler {
	return &Handler{
		Store: store,
		Log:   logger,
		Now:   time.Now,
		cache: gocache.New(statsTTL, time.Minute),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/email-queue/schedule", h.Schedule)
		r.Get("/email-queue/stats", h.Stats)
		r.Get("/email/open/{id}", h.TrackOpen)
	})
}

type scheduleRequest struct {
	SubmissionID int64      `json:"submission_id"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	DelayMinutes int        `json:"delay_minutes,omitempty"`
}

// Schedule sets a submission's follow-up email to pending at the requested
// time. It accepts one JSON request or a text/csv bulk body.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	now := h.Now()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		h.scheduleCSV(w, r, now)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SubmissionID <= 0 {
		writeErr(w, http.StatusBadRequest, "submission_id is required")
		return
	}
	if req.DelayMinutes < 0 {
		writeErr(w, http.StatusBadRequest, "delay_minutes must not be negative")
		return
	}

	at := now.Add(time.Duration(req.DelayMinutes) * time.Minute)
	if req.ScheduledAt != nil {
		at = *req.ScheduledAt
	}

	err := h.Store.ScheduleEmail(r.Context(), req.SubmissionID, at)
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeErr(w, http.StatusNotFound, "submission not found")
		return
	case errors.Is(err, db.ErrAlreadySent):
		writeErr(w, http.StatusConflict, "follow-up email already sent")
		return
	case err != nil:
		h.Log.Error("failed to schedule email",
			zap.Int64("submission_id", req.SubmissionID),
			zap.Error(err),
		)
		writeErr(w, http.StatusInternalServerError, "failed to schedule email")
		return
	}

	h.cache.Delete(statsCacheKey)
	h.Log.Info("follow-up email scheduled",
		zap.Int64("submission_id", req.SubmissionID),
		zap.Time("scheduled_at", at),
	)

	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": 1})
}

func (h *Handler) scheduleCSV(w http.ResponseWriter, r *http.Request, now time.Time) {
	rows, err := csvparser.ParseScheduleRows(r.Body, maxCSVRows, now)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	scheduled := 0
	var rejected []int64

	for _, row := range rows {
		err := h.Store.ScheduleEmail(r.Context(), row.SubmissionID, row.ScheduledAt)
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrAlreadySent) {
			rejected = append(rejected, row.SubmissionID)
			continue
		}
		if err != nil {
			h.Log.Error("bulk schedule aborted",
				zap.Int64("submission_id", row.SubmissionID),
				zap.Int("scheduled", scheduled),
				zap.Error(err),
			)
			writeErr(w, http.StatusInternalServerError, "failed to schedule email")
			return
		}
		scheduled++
	}

	h.cache.Delete(statsCacheKey)
	h.Log.Info("bulk follow-up emails scheduled",
		zap.Int("scheduled", scheduled),
		zap.Int("rejected", len(rejected)),
	)

	resp := map[string]any{"scheduled": scheduled}
	if len(rejected) > 0 {
		resp["rejected"] = rejected
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.Get(statsCacheKey); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := h.Store.QueueStats(r.Context(), h.Now())
	if err != nil {
		h.Log.Error("failed to load queue stats", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "failed to load queue stats")
		return
	}

	h.cache.SetDefault(statsCacheKey, stats)
	writeJSON(w, http.StatusOK, stats)
}

// TrackOpen always answers with the pixel so mail clients never show a
// broken image.
func (h *Handler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil && id > 0 {
		err = h.Store.MarkOpened(r.Context(), id, h.Now())
		switch {
		case err == nil:
			h.cache.Delete(statsCacheKey)
		case errors.Is(err, db.ErrNotFound):
		default:
			h.Log.Warn("failed to record email open", zap.Int64("submission_id", id), zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixel)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, desc string) {
	writeJSON(w, status, map[string]string{"error": desc})
}
