package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
)

const (
	portColumns     = "id, name, code, country, capacity, created_at, updated_at"
	freeZoneColumns = "id, name, address, area, rental_rate, created_at, updated_at"
	customerColumns = `c.id, c.name, c.email, c.phone, c.address,
	(SELECT COUNT(*) FROM invoices i WHERE i.customer_id = c.id),
	(SELECT COALESCE(SUM(i.outstanding_amount), 0) FROM invoices i
	 WHERE i.customer_id = c.id AND i.status <> 'cancelled'),
	c.created_at, c.updated_at`
)

func scanPort(row pgx.Row) (registry.Port, error) {
	var p registry.Port
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Country, &p.Capacity, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanFreeZone(row pgx.Row) (registry.FreeZone, error) {
	var z registry.FreeZone
	err := row.Scan(&z.ID, &z.Name, &z.Address, &z.Area, &z.RentalRate, &z.CreatedAt, &z.UpdatedAt)
	return z, err
}

func scanCustomer(row pgx.Row) (registry.Customer, error) {
	var c registry.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address,
		&c.InvoiceCount, &c.Outstanding, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (t *txRepo) LocationInUse(ctx context.Context, ref location.Ref) (bool, error) {
	locType, locID := refArgs(ref)
	query := `
		SELECT 1 FROM products WHERE location_type = $1 AND location_id = $2
		UNION ALL SELECT 1 FROM stock_balances WHERE location_type = $1 AND location_id = $2 AND quantity <> 0
		UNION ALL SELECT 1 FROM transportation_jobs
		    WHERE (from_type = $1 AND from_id = $2) OR (to_type = $1 AND to_id = $2)`
	switch ref.Kind {
	case location.KindPort:
		query += `
		UNION ALL SELECT 1 FROM vessels WHERE port_id = $2
		UNION ALL SELECT 1 FROM manifest_items WHERE discharge_port_id = $2`
	case location.KindCustomer:
		query += `
		UNION ALL SELECT 1 FROM invoices WHERE customer_id = $2`
	}
	return exists(ctx, t.q, query, locType, locID)
}

func (t *txRepo) InsertPort(ctx context.Context, p registry.Port) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO ports (name, code, country, capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Name, p.Code, p.Country, p.Capacity, p.CreatedAt, p.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetPortForUpdate(ctx context.Context, id int64) (registry.Port, error) {
	p, err := scanPort(t.q.QueryRow(ctx, "SELECT "+portColumns+" FROM ports WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return registry.Port{}, notFound(err, "port %d not found", id)
	}
	return p, nil
}

func (t *txRepo) UpdatePort(ctx context.Context, p registry.Port) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE ports SET name = $2, code = $3, country = $4, capacity = $5, updated_at = $6
		WHERE id = $1`, p.ID, p.Name, p.Code, p.Country, p.Capacity, p.UpdatedAt)
	return mustAffect(tag, err, "port %d not found", p.ID)
}

func (t *txRepo) DeletePort(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM ports WHERE id = $1", id)
	return mustAffect(tag, err, "port %d not found", id)
}

func (t *txRepo) InsertFreeZone(ctx context.Context, z registry.FreeZone) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO free_zones (name, address, area, rental_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		z.Name, z.Address, z.Area, z.RentalRate, z.CreatedAt, z.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetFreeZoneForUpdate(ctx context.Context, id int64) (registry.FreeZone, error) {
	z, err := scanFreeZone(t.q.QueryRow(ctx, "SELECT "+freeZoneColumns+" FROM free_zones WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return registry.FreeZone{}, notFound(err, "free zone %d not found", id)
	}
	return z, nil
}

func (t *txRepo) UpdateFreeZone(ctx context.Context, z registry.FreeZone) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE free_zones SET name = $2, address = $3, area = $4, rental_rate = $5, updated_at = $6
		WHERE id = $1`, z.ID, z.Name, z.Address, z.Area, z.RentalRate, z.UpdatedAt)
	return mustAffect(tag, err, "free zone %d not found", z.ID)
}

func (t *txRepo) DeleteFreeZone(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM free_zones WHERE id = $1", id)
	return mustAffect(tag, err, "free zone %d not found", id)
}

func (t *txRepo) InsertCustomer(ctx context.Context, c registry.Customer) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.Name, c.Email, c.Phone, c.Address, c.CreatedAt, c.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetCustomerForUpdate(ctx context.Context, id int64) (registry.Customer, error) {
	c, err := scanCustomer(t.q.QueryRow(ctx,
		"SELECT "+customerColumns+" FROM customers c WHERE c.id = $1 FOR UPDATE OF c", id))
	if err != nil {
		return registry.Customer{}, notFound(err, "customer %d not found", id)
	}
	return c, nil
}

func (t *txRepo) UpdateCustomer(ctx context.Context, c registry.Customer) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE customers SET name = $2, email = $3, phone = $4, address = $5, updated_at = $6
		WHERE id = $1`, c.ID, c.Name, c.Email, c.Phone, c.Address, c.UpdatedAt)
	return mustAffect(tag, err, "customer %d not found", c.ID)
}

func (t *txRepo) DeleteCustomer(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM customers WHERE id = $1", id)
	return mustAffect(tag, err, "customer %d not found", id)
}

// ListPorts returns matching ports newest first.
func (s *Store) ListPorts(ctx context.Context, filter registry.ListFilter) ([]registry.Port, int, error) {
	var c conditions
	c.search(filter.Search, "name", "code", "country")
	total, err := c.count(ctx, s.pool, "ports")
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT " + portColumns + " FROM ports" + c.where() + " ORDER BY id DESC" + c.page(filter.Page)
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanPort)
	return out, total, err
}

// GetPort returns one port.
func (s *Store) GetPort(ctx context.Context, id int64) (registry.Port, error) {
	p, err := scanPort(s.pool.QueryRow(ctx, "SELECT "+portColumns+" FROM ports WHERE id = $1", id))
	if err != nil {
		return registry.Port{}, notFound(err, "port %d not found", id)
	}
	return p, nil
}

// ListFreeZones returns matching free zones newest first.
func (s *Store) ListFreeZones(ctx context.Context, filter registry.ListFilter) ([]registry.FreeZone, int, error) {
	var c conditions
	c.search(filter.Search, "name", "address")
	total, err := c.count(ctx, s.pool, "free_zones")
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT " + freeZoneColumns + " FROM free_zones" + c.where() + " ORDER BY id DESC" + c.page(filter.Page)
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanFreeZone)
	return out, total, err
}

// GetFreeZone returns one free zone.
func (s *Store) GetFreeZone(ctx context.Context, id int64) (registry.FreeZone, error) {
	z, err := scanFreeZone(s.pool.QueryRow(ctx, "SELECT "+freeZoneColumns+" FROM free_zones WHERE id = $1", id))
	if err != nil {
		return registry.FreeZone{}, notFound(err, "free zone %d not found", id)
	}
	return z, nil
}

// ListCustomers returns matching customers newest first, with invoice aggregates.
func (s *Store) ListCustomers(ctx context.Context, filter registry.ListFilter) ([]registry.Customer, int, error) {
	var c conditions
	c.search(filter.Search, "c.name", "c.email", "c.phone")
	total, err := c.count(ctx, s.pool, "customers c")
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT " + customerColumns + " FROM customers c" + c.where() + " ORDER BY c.id DESC" + c.page(filter.Page)
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanCustomer)
	return out, total, err
}

// GetCustomer returns one customer with invoice aggregates.
func (s *Store) GetCustomer(ctx context.Context, id int64) (registry.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx, "SELECT "+customerColumns+" FROM customers c WHERE c.id = $1", id))
	if err != nil {
		return registry.Customer{}, notFound(err, "customer %d not found", id)
	}
	return c, nil
}
