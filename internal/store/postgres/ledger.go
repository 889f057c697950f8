package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

func getItem(ctx context.Context, q querier, productID int64, lock string) (ledger.Item, error) {
	var (
		item    ledger.Item
		locType string
		locID   int64
	)
	err := q.QueryRow(ctx, `
		SELECT id, location_type, location_id, on_hand, committed
		FROM products WHERE id = $1`+lock, productID,
	).Scan(&item.ProductID, &locType, &locID, &item.OnHand, &item.Committed)
	if err != nil {
		return ledger.Item{}, notFound(err, "product %d not found", productID)
	}
	item.Home = refOf(locType, locID)
	return item, nil
}

func (t *txRepo) GetItemForUpdate(ctx context.Context, productID int64) (ledger.Item, error) {
	return getItem(ctx, t.q, productID, " FOR UPDATE")
}

func (t *txRepo) SaveItem(ctx context.Context, item ledger.Item) error {
	locType, locID := refArgs(item.Home)
	tag, err := t.q.Exec(ctx, `
		UPDATE products
		SET location_type = $2, location_id = $3, on_hand = $4, committed = $5, updated_at = NOW()
		WHERE id = $1`, item.ProductID, locType, locID, item.OnHand, item.Committed)
	return mustAffect(tag, err, "product %d not found", item.ProductID)
}

func (t *txRepo) GetBalanceForUpdate(ctx context.Context, productID int64, loc location.Ref) (ledger.Balance, error) {
	locType, locID := refArgs(loc)
	bal := ledger.Balance{ProductID: productID, Location: loc}
	err := t.q.QueryRow(ctx, `
		SELECT quantity, updated_at FROM stock_balances
		WHERE product_id = $1 AND location_type = $2 AND location_id = $3
		FOR UPDATE`, productID, locType, locID,
	).Scan(&bal.Quantity, &bal.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Balance{}, ledger.ErrBalanceNotFound
	}
	return bal, err
}

func (t *txRepo) UpsertBalance(ctx context.Context, bal ledger.Balance) error {
	locType, locID := refArgs(bal.Location)
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_balances (product_id, location_type, location_id, quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, location_type, location_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		bal.ProductID, locType, locID, bal.Quantity, bal.UpdatedAt)
	return err
}

func (t *txRepo) InsertStockEntry(ctx context.Context, e ledger.StockEntry) error {
	locType, locID := refArgs(e.Location)
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_entries
		    (product_id, location_type, location_id, qty_in, qty_out, balance, reference, note, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ProductID, locType, locID, e.QtyIn, e.QtyOut, e.Balance, e.Reference, e.Note, e.PostedAt)
	return err
}

// GetItem returns the ledger row of a product.
func (s *Store) GetItem(ctx context.Context, productID int64) (ledger.Item, error) {
	return getItem(ctx, s.pool, productID, "")
}

// ListBalances returns every non-empty balance of a product.
func (s *Store) ListBalances(ctx context.Context, productID int64) ([]ledger.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT location_type, location_id, quantity, updated_at
		FROM stock_balances
		WHERE product_id = $1 AND quantity <> 0
		ORDER BY location_type, location_id`, productID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (ledger.Balance, error) {
		var (
			bal     = ledger.Balance{ProductID: productID}
			locType string
			locID   int64
		)
		err := row.Scan(&locType, &locID, &bal.Quantity, &bal.UpdatedAt)
		bal.Location = refOf(locType, locID)
		return bal, err
	})
}

// GetStockCard returns stock entries newest first.
func (s *Store) GetStockCard(ctx context.Context, filter ledger.StockCardFilter) ([]ledger.StockEntry, error) {
	var c conditions
	c.add("product_id = %s", filter.ProductID)
	if filter.Location != nil {
		locType, locID := refArgs(*filter.Location)
		c.add("location_type = %s AND location_id = %s", locType, locID)
	}
	if !filter.From.IsZero() {
		c.add("posted_at >= %s", filter.From)
	}
	if !filter.To.IsZero() {
		c.add("posted_at <= %s", filter.To)
	}
	query := `
		SELECT id, product_id, location_type, location_id, qty_in, qty_out, balance, reference, note, posted_at
		FROM stock_entries` + c.where() + ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += " LIMIT " + c.arg(filter.Limit)
	}
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (ledger.StockEntry, error) {
		var (
			e       ledger.StockEntry
			locType string
			locID   int64
		)
		err := row.Scan(&e.ID, &e.ProductID, &locType, &locID, &e.QtyIn, &e.QtyOut,
			&e.Balance, &e.Reference, &e.Note, &e.PostedAt)
		e.Location = refOf(locType, locID)
		return e, err
	})
}
