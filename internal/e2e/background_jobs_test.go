package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/cargo-ledger/internal/jobs"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/testing/fixture"
	"github.com/odyssey-erp/cargo-ledger/jobs"
)

func TestOverdueSweepJob(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	buyer := h.Customer(t, "PT Samudra")
	zone := h.FreeZone(t, "Batam FZ")
	cement := h.Product(t, "Cement", zone.Ref(), "100")

	now := time.Now().UTC()
	h.Settlement.WithNow(func() time.Time { return now })
	due := now.Add(24 * time.Hour)
	inv, err := h.Settlement.Create(ctx, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		DueDate:    &due,
		Lines: []settlement.LineInput{{
			ProductID: cement.ID,
			Quantity:  fixture.MT("10"),
			UnitPrice: fixture.MT("80"),
		}},
	})
	require.NoError(t, err)
	_, err = h.Settlement.Send(ctx, inv.ID)
	require.NoError(t, err)

	// drafts are never swept
	_ = h.Invoice(t, buyer.ID, cement.ID, "5", "80")

	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := jobs.NewOverdueSweepJob(h.Settlement, h.Logger, metrics)
	task, err := jobs.NewOverdueSweepTask("")
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)
	require.NoError(t, job.Handle(ctx, task))

	got, err := h.Settlement.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, settlement.StatusOverdue, got.Status)
	overdue, total, err := h.Settlement.List(ctx, settlement.ListFilter{Status: settlement.StatusOverdue})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, inv.ID, overdue[0].ID)

	// second run finds nothing new
	require.NoError(t, job.Handle(ctx, task))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, assertCounter(t, families, "cargo_jobs_total",
		map[string]string{"job": jobs.TaskOverdueSweep, "status": "success"}, 2))
	require.True(t, assertCounter(t, families, "cargo_invoices_marked_overdue_total", nil, 1))
	require.True(t, metricExists(families, "cargo_job_duration_seconds"))
}

func TestIdempotencyCleanupJob(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	require.NoError(t, h.Idempotency.CheckAndInsert(ctx, "req-1", "movement"))

	reg := prometheus.NewRegistry()
	job := jobs.NewIdempotencyCleanupJob(h.Idempotency, h.Logger, jobmetrics.NewMetrics(reg))
	task, err := jobs.NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))

	// fresh keys survive the default retention
	require.ErrorIs(t, h.Idempotency.CheckAndInsert(ctx, "req-1", "movement"), shared.ErrIdempotencyConflict)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, assertCounter(t, families, "cargo_jobs_total",
		map[string]string{"job": jobs.TaskIdempotencyCleanup, "status": "success"}, 1))
}

func assertCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				if metric.GetCounter() == nil {
					return false
				}
				if metric.GetCounter().GetValue() == expected {
					return true
				}
			}
		}
	}
	return false
}

func metricExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}
