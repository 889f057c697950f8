package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

const productColumns = `id, name, category, unit, status, location_type, location_id,
	on_hand, committed, created_at, updated_at`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p       catalog.Product
		locType string
		locID   int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Status, &locType, &locID,
		&p.OnHand, &p.Committed, &p.CreatedAt, &p.UpdatedAt)
	p.Location = refOf(locType, locID)
	return p, err
}

// locationTable names the registry table backing a location kind.
func locationTable(kind location.Kind) string {
	switch kind {
	case location.KindVessel:
		return "vessels"
	case location.KindPort:
		return "ports"
	case location.KindFreeZone:
		return "free_zones"
	case location.KindCustomer:
		return "customers"
	}
	return ""
}

func (t *txRepo) LocationExists(ctx context.Context, ref location.Ref) (bool, error) {
	table := locationTable(ref.Kind)
	if table == "" {
		return false, nil
	}
	return exists(ctx, t.q, "SELECT 1 FROM "+table+" WHERE id = $1", ref.ID)
}

func (t *txRepo) ProductReferenced(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, t.q, `
		SELECT 1 FROM invoice_items WHERE product_id = $1
		UNION ALL SELECT 1 FROM manifest_items WHERE product_id = $1
		UNION ALL SELECT 1 FROM transportation_items WHERE product_id = $1`, id)
}

func (t *txRepo) InsertProduct(ctx context.Context, p catalog.Product) (int64, error) {
	locType, locID := refArgs(p.Location)
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO products
		    (name, category, unit, status, location_type, location_id, on_hand, committed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		p.Name, p.Category, p.Unit, p.Status, locType, locID, p.OnHand, p.Committed, p.CreatedAt, p.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error) {
	p, err := scanProduct(t.q.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return catalog.Product{}, notFound(err, "product %d not found", id)
	}
	return p, nil
}

// UpdateProduct writes descriptive fields; ledger columns are owned by SaveItem.
func (t *txRepo) UpdateProduct(ctx context.Context, p catalog.Product) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE products SET name = $2, category = $3, unit = $4, status = $5, updated_at = $6
		WHERE id = $1`, p.ID, p.Name, p.Category, p.Unit, p.Status, p.UpdatedAt)
	return mustAffect(tag, err, "product %d not found", p.ID)
}

func (t *txRepo) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	return mustAffect(tag, err, "product %d not found", id)
}

// ListProducts returns matching products newest first.
func (s *Store) ListProducts(ctx context.Context, filter catalog.ListFilter) ([]catalog.Product, int, error) {
	var c conditions
	if filter.Status != "" {
		c.add("status = %s", filter.Status)
	}
	if filter.LocationKind != "" {
		c.add("location_type = %s", filter.LocationKind)
	}
	if filter.Location != nil {
		locType, locID := refArgs(*filter.Location)
		c.add("location_type = %s AND location_id = %s", locType, locID)
	}
	c.search(filter.Search, "name", "category")

	total, err := c.count(ctx, s.pool, "products")
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT " + productColumns + " FROM products" + c.where() + " ORDER BY id DESC" + c.page(filter.Page)
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanProduct)
	return out, total, err
}

// GetProduct returns one product.
func (s *Store) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		return catalog.Product{}, notFound(err, "product %d not found", id)
	}
	return p, nil
}
