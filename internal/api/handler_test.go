package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/db"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

type fakeStore struct {
	mu sync.Mutex

	status    map[int64]models.EmailStatus
	scheduled map[int64]time.Time
	opened    map[int64]time.Time

	scheduleErr error
	statsCalls  int
	pingErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		status: map[int64]models.EmailStatus{
			1: models.StatusPending,
			2: models.StatusSent,
			3: models.StatusFailed,
		},
		scheduled: make(map[int64]time.Time),
		opened:    make(map[int64]time.Time),
	}
}

func (f *fakeStore) SelectDueEmailEntries(context.Context, time.Time, int) ([]models.EmailQueueEntry, error) {
	return nil, nil
}

func (f *fakeStore) UpdateEmailEntry(context.Context, int64, models.EntryUpdate) error {
	return nil
}

func (f *fakeStore) ScheduleEmail(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	st, ok := f.status[id]
	if !ok {
		return db.ErrNotFound
	}
	if st == models.StatusSent {
		return db.ErrAlreadySent
	}
	f.status[id] = models.StatusPending
	f.scheduled[id] = at
	return nil
}

func (f *fakeStore) MarkOpened(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.status[id]; !ok {
		return db.ErrNotFound
	}
	if _, ok := f.opened[id]; !ok {
		f.opened[id] = at
	}
	return nil
}

func (f *fakeStore) QueueStats(context.Context, time.Time) (models.QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statsCalls++
	stats := models.QueueStats{ByStatus: make(map[models.EmailStatus]int64)}
	for _, st := range f.status {
		stats.ByStatus[st]++
	}
	stats.Opened = int64(len(f.opened))
	return stats, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }
func (f *fakeStore) Close()                     {}

var fixedNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func setupHandler(t *testing.T) (*Handler, *fakeStore, http.Handler) {
	t.Helper()

	store := newFakeStore()
	h := NewHandler(store, zaptest.NewLogger(t))
	h.Now = func() time.Time { return fixedNow }

	return h, store, h.Routes()
}

func do(t *testing.T, router http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSchedule_JSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantAt     time.Time
	}{
		{
			name:       "defaults to now",
			body:       `{"submission_id": 1}`,
			wantStatus: http.StatusAccepted,
			wantAt:     fixedNow,
		},
		{
			name:       "delay in minutes",
			body:       `{"submission_id": 1, "delay_minutes": 30}`,
			wantStatus: http.StatusAccepted,
			wantAt:     fixedNow.Add(30 * time.Minute),
		},
		{
			name:       "explicit time wins",
			body:       `{"submission_id": 3, "scheduled_at": "2026-04-02T08:00:00Z", "delay_minutes": 30}`,
			wantStatus: http.StatusAccepted,
			wantAt:     time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
		},
		{
			name:       "unknown submission",
			body:       `{"submission_id": 99}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "already sent",
			body:       `{"submission_id": 2}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing id",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative delay",
			body:       `{"submission_id": 1, "delay_minutes": -5}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed",
			body:       `{"submission_id":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, store, router := setupHandler(t)

			rec := do(t, router, http.MethodPost, "/api/email-queue/schedule", "application/json", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusAccepted {
				return
			}
			var resp map[string]int
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 1, resp["scheduled"])

			var id int64 = 1
			if strings.Contains(tt.body, `"submission_id": 3`) {
				id = 3
				assert.Equal(t, models.StatusPending, store.status[3])
			}
			assert.True(t, store.scheduled[id].Equal(tt.wantAt), "scheduled at %s", store.scheduled[id])
		})
	}
}

func TestSchedule_FailedEntryReturnsToQueue(t *testing.T) {
	_, store, router := setupHandler(t)

	rec := do(t, router, http.MethodPost, "/api/email-queue/schedule", "application/json", `{"submission_id": 3}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusPending, store.status[3])
	assert.True(t, store.scheduled[3].Equal(fixedNow))

	rec = do(t, router, http.MethodPost, "/api/email-queue/schedule", "application/json", `{"submission_id": 2}`)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusSent, store.status[2])
	_, scheduled := store.scheduled[2]
	assert.False(t, scheduled)
}

func TestSchedule_StoreError(t *testing.T) {
	_, store, router := setupHandler(t)
	store.scheduleErr = errors.New("connection refused")

	rec := do(t, router, http.MethodPost, "/api/email-queue/schedule", "application/json", `{"submission_id": 1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestSchedule_CSV(t *testing.T) {
	_, store, router := setupHandler(t)

	body := "submission_id,scheduled_at\n1,2026-04-03T09:00:00Z\n2,\n3,\n99,\n"
	rec := do(t, router, http.MethodPost, "/api/email-queue/schedule", "text/csv; charset=utf-8", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Scheduled int     `json:"scheduled"`
		Rejected  []int64 `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Scheduled)
	assert.Equal(t, []int64{2, 99}, resp.Rejected)

	assert.True(t, store.scheduled[1].Equal(time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC)))
	assert.True(t, store.scheduled[3].Equal(fixedNow))
}

func TestSchedule_CSVInvalid(t *testing.T) {
	_, _, router := setupHandler(t)

	rec := do(t, router, http.MethodPost, "/api/email-queue/schedule", "text/csv", "email\nada@example.com\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "submission_id")
}

func TestStats_Cached(t *testing.T) {
	_, store, router := setupHandler(t)

	rec := do(t, router, http.MethodGet, "/api/email-queue/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.ByStatus[models.StatusPending])
	assert.Equal(t, int64(1), stats.ByStatus[models.StatusSent])

	rec = do(t, router, http.MethodGet, "/api/email-queue/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.statsCalls)

	// scheduling invalidates the cached stats
	do(t, router, http.MethodPost, "/api/email-queue/schedule", "application/json", `{"submission_id": 3}`)
	rec = do(t, router, http.MethodGet, "/api/email-queue/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, store.statsCalls)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.ByStatus[models.StatusPending])
}

func TestTrackOpen(t *testing.T) {
	_, store, router := setupHandler(t)

	for _, path := range []string{"/api/email/open/1", "/api/email/open/1", "/api/email/open/99", "/api/email/open/not-a-number"} {
		rec := do(t, router, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
		assert.Equal(t, pixel, rec.Body.Bytes())
	}

	require.Len(t, store.opened, 1)
	assert.True(t, store.opened[1].Equal(fixedNow))
}

func TestHealth(t *testing.T) {
	_, store, router := setupHandler(t)

	rec := do(t, router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	store.pingErr = errors.New("down")
	rec = do(t, router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
