package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/cargo-ledger/internal/jobs"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubMarker struct {
	marked int
	err    error
}

func (s stubMarker) MarkOverdue(context.Context) (int, error) { return s.marked, s.err }

type stubPurger struct {
	retention time.Duration
	purged    int64
}

func (s *stubPurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return s.purged, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestDefaultSchedule(t *testing.T) {
	schedule, err := DefaultSchedule()
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	require.Equal(t, TaskOverdueSweep, schedule[0].Task.Type())
	require.Equal(t, TaskIdempotencyCleanup, schedule[1].Task.Type())

	var payload IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(schedule[1].Task.Payload(), &payload))
	require.Equal(t, 7*24, payload.RetentionHours)
}

func TestOverdueSweepFailureIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewOverdueSweepJob(stubMarker{err: errors.New("db down")}, discard, metrics)
	task, err := NewOverdueSweepTask("manual")
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
	count, err := testutil.GatherAndCount(reg, "cargo_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOverdueSweepSkipsRetryOnBadPayload(t *testing.T) {
	job := NewOverdueSweepJob(stubMarker{}, discard, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskOverdueSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupUsesPayloadRetention(t *testing.T) {
	purger := &stubPurger{purged: 3}
	job := NewIdempotencyCleanupJob(purger, discard, nil)
	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, purger.retention)
}

func TestHandlerHealth(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, nil, discard).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":4,"active":0,"failed":1}`, rr.Body.String())
}

func TestHandlerHealthInspectorError(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis gone")}, nil, discard).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
