package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

const (
	vesselColumns = `v.id, v.name, v.bl_number, v.port_id, v.delivery_status, v.arrival_date,
	v.discharge_date, v.port_transfer_date, v.closed_at,
	EXISTS (
		SELECT 1 FROM manifest_items m
		JOIN stock_balances b ON b.product_id = m.product_id
		    AND b.location_type = 'vessel' AND b.location_id = m.vessel_id
		WHERE m.vessel_id = v.id AND m.status NOT IN ('completed', 'cancelled') AND b.quantity > 0
	),
	v.created_at, v.updated_at`
	manifestColumns = `id, vessel_id, product_id, discharge_port_id, quantity, bl_reference,
	arrival_date, status, created_at, updated_at`
)

func int64Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func scanVessel(row pgx.Row) (vessel.Vessel, error) {
	var (
		v      vessel.Vessel
		portID pgtype.Int8
	)
	err := row.Scan(&v.ID, &v.Name, &v.BLNumber, &portID, &v.Status, &v.ArrivalDate,
		&v.DischargeDate, &v.PortTransferDate, &v.ClosedAt, &v.HasProducts, &v.CreatedAt, &v.UpdatedAt)
	v.PortID = int64Ptr(portID)
	return v, err
}

func scanManifestItem(row pgx.Row) (vessel.ManifestItem, error) {
	var (
		it     vessel.ManifestItem
		portID pgtype.Int8
	)
	err := row.Scan(&it.ID, &it.VesselID, &it.ProductID, &portID, &it.Quantity, &it.BLReference,
		&it.ArrivalDate, &it.Status, &it.CreatedAt, &it.UpdatedAt)
	it.DischargePortID = int64Ptr(portID)
	return it, err
}

func (t *txRepo) InsertVessel(ctx context.Context, v vessel.Vessel) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO vessels (name, bl_number, port_id, delivery_status, arrival_date,
		    discharge_date, port_transfer_date, closed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		v.Name, v.BLNumber, v.PortID, v.Status, v.ArrivalDate,
		v.DischargeDate, v.PortTransferDate, v.ClosedAt, v.CreatedAt, v.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetVesselForUpdate(ctx context.Context, id int64) (vessel.Vessel, error) {
	v, err := scanVessel(t.q.QueryRow(ctx,
		"SELECT "+vesselColumns+" FROM vessels v WHERE v.id = $1 FOR UPDATE OF v", id))
	if err != nil {
		return vessel.Vessel{}, notFound(err, "vessel %d not found", id)
	}
	return v, nil
}

func (t *txRepo) UpdateVessel(ctx context.Context, v vessel.Vessel) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE vessels SET name = $2, bl_number = $3, port_id = $4, delivery_status = $5,
		    arrival_date = $6, discharge_date = $7, port_transfer_date = $8, closed_at = $9, updated_at = $10
		WHERE id = $1`,
		v.ID, v.Name, v.BLNumber, v.PortID, v.Status,
		v.ArrivalDate, v.DischargeDate, v.PortTransferDate, v.ClosedAt, v.UpdatedAt)
	return mustAffect(tag, err, "vessel %d not found", v.ID)
}

// DeleteVessel relies on ON DELETE CASCADE for the manifest.
func (t *txRepo) DeleteVessel(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM vessels WHERE id = $1", id)
	return mustAffect(tag, err, "vessel %d not found", id)
}

func (t *txRepo) BLNumberTaken(ctx context.Context, bl string, exceptID int64) (bool, error) {
	return exists(ctx, t.q, "SELECT 1 FROM vessels WHERE LOWER(bl_number) = LOWER($1) AND id <> $2", bl, exceptID)
}

func listManifest(ctx context.Context, q querier, vesselID int64) ([]vessel.ManifestItem, error) {
	rows, err := q.Query(ctx, "SELECT "+manifestColumns+" FROM manifest_items WHERE vessel_id = $1 ORDER BY id", vesselID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanManifestItem)
}

func (t *txRepo) ListManifestItems(ctx context.Context, vesselID int64) ([]vessel.ManifestItem, error) {
	return listManifest(ctx, t.q, vesselID)
}

func (t *txRepo) InsertManifestItem(ctx context.Context, it vessel.ManifestItem) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO manifest_items (vessel_id, product_id, discharge_port_id, quantity, bl_reference,
		    arrival_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		it.VesselID, it.ProductID, it.DischargePortID, it.Quantity, it.BLReference,
		it.ArrivalDate, it.Status, it.CreatedAt, it.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetManifestItemForUpdate(ctx context.Context, id int64) (vessel.ManifestItem, error) {
	it, err := scanManifestItem(t.q.QueryRow(ctx,
		"SELECT "+manifestColumns+" FROM manifest_items WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return vessel.ManifestItem{}, notFound(err, "manifest item %d not found", id)
	}
	return it, nil
}

func (t *txRepo) UpdateManifestItem(ctx context.Context, it vessel.ManifestItem) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE manifest_items SET product_id = $2, discharge_port_id = $3, quantity = $4,
		    bl_reference = $5, arrival_date = $6, status = $7, updated_at = $8
		WHERE id = $1`,
		it.ID, it.ProductID, it.DischargePortID, it.Quantity, it.BLReference, it.ArrivalDate, it.Status, it.UpdatedAt)
	return mustAffect(tag, err, "manifest item %d not found", it.ID)
}

func (t *txRepo) DeleteManifestItem(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM manifest_items WHERE id = $1", id)
	return mustAffect(tag, err, "manifest item %d not found", id)
}

// ListVessels returns matching vessels newest first.
func (s *Store) ListVessels(ctx context.Context, filter vessel.ListFilter) ([]vessel.Vessel, int, error) {
	var c conditions
	if filter.Status != "" {
		c.add("v.delivery_status = %s", filter.Status)
	}
	c.search(filter.Search, "v.name", "v.bl_number")
	total, err := c.count(ctx, s.pool, "vessels v")
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT " + vesselColumns + " FROM vessels v" + c.where() + " ORDER BY v.id DESC" + c.page(filter.Page)
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanVessel)
	return out, total, err
}

// GetVessel returns one vessel.
func (s *Store) GetVessel(ctx context.Context, id int64) (vessel.Vessel, error) {
	v, err := scanVessel(s.pool.QueryRow(ctx, "SELECT "+vesselColumns+" FROM vessels v WHERE v.id = $1", id))
	if err != nil {
		return vessel.Vessel{}, notFound(err, "vessel %d not found", id)
	}
	return v, nil
}

// ListManifest returns the manifest of an existing vessel.
func (s *Store) ListManifest(ctx context.Context, vesselID int64) ([]vessel.ManifestItem, error) {
	ok, err := exists(ctx, s.pool, "SELECT 1 FROM vessels WHERE id = $1", vesselID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(pgx.ErrNoRows, "vessel %d not found", vesselID)
	}
	return listManifest(ctx, s.pool, vesselID)
}
