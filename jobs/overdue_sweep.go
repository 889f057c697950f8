package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/cargo-ledger/internal/jobs"
)

// OverdueMarker flips qualifying invoices to overdue and reports how many changed.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int, error)
}

// OverdueSweepJob runs the settlement overdue sweep.
type OverdueSweepJob struct {
	Service OverdueMarker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueSweepJob constructs the job handler.
func NewOverdueSweepJob(service OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *OverdueSweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("overdue sweep: dependencies not configured")
	}
	var payload OverdueSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskOverdueSweep)
	start := j.clock()
	marked, err := j.Service.MarkOverdue(ctx)
	if err != nil {
		j.log().Error("overdue sweep", slog.String("trigger", payload.Trigger), slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddOverdue(marked)
	j.log().Info("overdue sweep completed",
		slog.String("trigger", payload.Trigger),
		slog.Int("marked", marked),
		slog.Duration("duration", j.clock().Sub(start)))
	return tracker.End(nil)
}

func (j *OverdueSweepJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
