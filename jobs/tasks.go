package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueSweep marks sent invoices past their due date as overdue.
	TaskOverdueSweep = "settlement:overdue_sweep"
	// TaskIdempotencyCleanup purges expired movement idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// DefaultIdempotencyRetention is how long a movement request key is remembered.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

// OverdueSweepPayload carries scheduling metadata.
type OverdueSweepPayload struct {
	Trigger string `json:"trigger"`
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewOverdueSweepTask constructs an Asynq task for the overdue sweep.
func NewOverdueSweepTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		trigger = "cron"
	}
	body, err := json.Marshal(OverdueSweepPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs an Asynq task purging keys older than retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// DefaultSchedule returns the cron registrations run by the worker.
func DefaultSchedule() ([]CronRegistration, error) {
	sweep, err := NewOverdueSweepTask("cron")
	if err != nil {
		return nil, err
	}
	cleanup, err := NewIdempotencyCleanupTask(DefaultIdempotencyRetention)
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: "0 * * * *", Task: sweep, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: "30 3 * * *", Task: cleanup, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}, nil
}
