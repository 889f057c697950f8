package memory

import (
	"context"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

func (t *tx) LocationClosed(_ context.Context, ref location.Ref) (bool, error) {
	if ref.Kind != location.KindVessel {
		return false, nil
	}
	v, ok := t.st.vessels[ref.ID]
	return ok && v.Status == vessel.StatusClosed, nil
}

func (t *tx) InsertJob(_ context.Context, job movement.Job) (int64, error) {
	job = cloneJob(job)
	job.ID = t.st.next("jobs")
	for i := range job.Items {
		job.Items[i].ID = t.st.next("job_items")
		job.Items[i].JobID = job.ID
	}
	t.st.jobs[job.ID] = job
	return job.ID, nil
}

func (t *tx) GetJobForUpdate(_ context.Context, id int64) (movement.Job, error) {
	job, ok := t.st.jobs[id]
	if !ok {
		return movement.Job{}, shared.NotFound("movement %d not found", id)
	}
	return cloneJob(job), nil
}

func (t *tx) UpdateJob(_ context.Context, job movement.Job) error {
	cur, ok := t.st.jobs[job.ID]
	if !ok {
		return shared.NotFound("movement %d not found", job.ID)
	}
	// items are fixed once the movement is booked
	job.Items = cur.Items
	t.st.jobs[job.ID] = job
	return nil
}

func (t *tx) DeleteJob(_ context.Context, id int64) error {
	if _, ok := t.st.jobs[id]; !ok {
		return shared.NotFound("movement %d not found", id)
	}
	delete(t.st.jobs, id)
	return nil
}

// ListJobs returns matching movements newest first.
func (s *Store) ListJobs(_ context.Context, filter movement.ListFilter) ([]movement.Job, int, error) {
	var all []movement.Job
	s.read(func(st *state) {
		all = sortedValues(st.jobs, func(job movement.Job) bool {
			if filter.Type != "" && job.Type != filter.Type {
				return false
			}
			if filter.Status != "" && job.Status != filter.Status {
				return false
			}
			if filter.LocationKind != "" && job.From.Kind != filter.LocationKind && job.To.Kind != filter.LocationKind {
				return false
			}
			if filter.InvoiceID > 0 && (job.InvoiceID == nil || *job.InvoiceID != filter.InvoiceID) {
				return false
			}
			return shared.MatchesSearch(filter.Search, job.Reference, job.Notes)
		})
		for i := range all {
			all[i] = cloneJob(all[i])
		}
	})
	return shared.Paginate(all, filter.Page), len(all), nil
}

// GetJob returns one movement with its items.
func (s *Store) GetJob(_ context.Context, id int64) (movement.Job, error) {
	var (
		job movement.Job
		ok  bool
	)
	s.read(func(st *state) {
		job, ok = st.jobs[id]
		job = cloneJob(job)
	})
	if !ok {
		return movement.Job{}, shared.NotFound("movement %d not found", id)
	}
	return job, nil
}
