package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

const (
	jobColumns = `id, reference_number, type, status, from_type, from_id, to_type, to_id,
	vehicle_id, invoice_id, transport_value, scheduled_date, actual_start, actual_end, notes,
	created_at, updated_at`
	jobItemColumns = "id, job_id, product_id, invoice_item_id, quantity, unit"
)

func scanJob(row pgx.Row) (movement.Job, error) {
	var (
		job                movement.Job
		fromType, toType   string
		fromID, toID       int64
		vehicleID, invoice pgtype.Int8
	)
	err := row.Scan(&job.ID, &job.Reference, &job.Type, &job.Status, &fromType, &fromID, &toType, &toID,
		&vehicleID, &invoice, &job.TransportValue, &job.ScheduledDate, &job.ActualStart, &job.ActualEnd,
		&job.Notes, &job.CreatedAt, &job.UpdatedAt)
	job.From = refOf(fromType, fromID)
	job.To = refOf(toType, toID)
	job.VehicleID = int64Ptr(vehicleID)
	job.InvoiceID = int64Ptr(invoice)
	return job, err
}

func scanJobItem(row pgx.Row) (movement.Item, error) {
	var (
		it   movement.Item
		line pgtype.Int8
	)
	err := row.Scan(&it.ID, &it.JobID, &it.ProductID, &line, &it.Quantity, &it.Unit)
	it.InvoiceLineID = int64Ptr(line)
	return it, err
}

func attachJobItems(ctx context.Context, q querier, jobs []movement.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	ids := make([]int64, len(jobs))
	index := make(map[int64]int, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
		index[job.ID] = i
	}
	rows, err := q.Query(ctx,
		"SELECT "+jobItemColumns+" FROM transportation_items WHERE job_id = ANY($1) ORDER BY id", ids)
	if err != nil {
		return err
	}
	items, err := collect(rows, scanJobItem)
	if err != nil {
		return err
	}
	for _, it := range items {
		i := index[it.JobID]
		jobs[i].Items = append(jobs[i].Items, it)
	}
	return nil
}

func getJob(ctx context.Context, q querier, id int64, lock string) (movement.Job, error) {
	job, err := scanJob(q.QueryRow(ctx, "SELECT "+jobColumns+" FROM transportation_jobs WHERE id = $1"+lock, id))
	if err != nil {
		return movement.Job{}, notFound(err, "movement %d not found", id)
	}
	one := []movement.Job{job}
	if err := attachJobItems(ctx, q, one); err != nil {
		return movement.Job{}, err
	}
	return one[0], nil
}

func (t *txRepo) LocationClosed(ctx context.Context, ref location.Ref) (bool, error) {
	if ref.Kind != location.KindVessel {
		return false, nil
	}
	return exists(ctx, t.q, "SELECT 1 FROM vessels WHERE id = $1 AND delivery_status = $2", ref.ID, string(vessel.StatusClosed))
}

func (t *txRepo) InsertJob(ctx context.Context, job movement.Job) (int64, error) {
	fromType, fromID := refArgs(job.From)
	toType, toID := refArgs(job.To)
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO transportation_jobs (reference_number, type, status, from_type, from_id, to_type, to_id,
		    vehicle_id, invoice_id, transport_value, scheduled_date, actual_start, actual_end, notes,
		    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`,
		job.Reference, job.Type, job.Status, fromType, fromID, toType, toID,
		job.VehicleID, job.InvoiceID, job.TransportValue, job.ScheduledDate, job.ActualStart, job.ActualEnd, job.Notes,
		job.CreatedAt, job.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, it := range job.Items {
		if _, err := t.q.Exec(ctx, `
			INSERT INTO transportation_items (job_id, product_id, invoice_item_id, quantity, unit)
			VALUES ($1, $2, $3, $4, $5)`,
			id, it.ProductID, it.InvoiceLineID, it.Quantity, it.Unit); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *txRepo) GetJobForUpdate(ctx context.Context, id int64) (movement.Job, error) {
	return getJob(ctx, t.q, id, " FOR UPDATE")
}

// UpdateJob writes header fields; items are fixed once the movement is booked.
func (t *txRepo) UpdateJob(ctx context.Context, job movement.Job) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE transportation_jobs SET status = $2, vehicle_id = $3, transport_value = $4,
		    scheduled_date = $5, actual_start = $6, actual_end = $7, notes = $8, updated_at = $9
		WHERE id = $1`,
		job.ID, job.Status, job.VehicleID, job.TransportValue,
		job.ScheduledDate, job.ActualStart, job.ActualEnd, job.Notes, job.UpdatedAt)
	return mustAffect(tag, err, "movement %d not found", job.ID)
}

func (t *txRepo) DeleteJob(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM transportation_jobs WHERE id = $1", id)
	return mustAffect(tag, err, "movement %d not found", id)
}

// ListJobs returns matching movements newest first.
func (s *Store) ListJobs(ctx context.Context, filter movement.ListFilter) ([]movement.Job, int, error) {
	var c conditions
	if filter.Type != "" {
		c.add("type = %s", string(filter.Type))
	}
	if filter.Status != "" {
		c.add("status = %s", string(filter.Status))
	}
	if filter.LocationKind != "" {
		c.add("(from_type = %[1]s OR to_type = %[1]s)", string(filter.LocationKind))
	}
	if filter.InvoiceID > 0 {
		c.add("invoice_id = %s", filter.InvoiceID)
	}
	c.search(filter.Search, "reference_number", "notes")
	total, err := c.count(ctx, s.pool, "transportation_jobs")
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT " + jobColumns + " FROM transportation_jobs" + c.where() + " ORDER BY id DESC" + c.page(filter.Page)
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanJob)
	if err != nil {
		return nil, 0, err
	}
	if err := attachJobItems(ctx, s.pool, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetJob returns one movement with its items.
func (s *Store) GetJob(ctx context.Context, id int64) (movement.Job, error) {
	return getJob(ctx, s.pool, id, "")
}
