// Package postgres persists the cargo ledger in PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/db"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for every module.
type Store struct {
	pool     *pgxpool.Pool
	attempts int
}

// New constructs a store; attempts bounds serialization-failure retries.
func New(pool *pgxpool.Pool, attempts int) *Store {
	return &Store{pool: pool, attempts: attempts}
}

// Migrate creates missing tables. The schema is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store/postgres: migrate: %w", err)
	}
	return nil
}

type txRepo struct {
	q querier
}

func (s *Store) withTx(ctx context.Context, fn func(*txRepo) error) error {
	return db.WithTxRetry(ctx, s.pool, s.attempts, func(tx pgx.Tx) error {
		return fn(&txRepo{q: tx})
	})
}

// CatalogRepo adapts the store to catalog.RepositoryPort.
type CatalogRepo struct{ *Store }

// WithTx runs fn inside a transaction.
func (r CatalogRepo) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	return r.withTx(ctx, func(t *txRepo) error { return fn(ctx, t) })
}

// RegistryRepo adapts the store to registry.RepositoryPort.
type RegistryRepo struct{ *Store }

// WithTx runs fn inside a transaction.
func (r RegistryRepo) WithTx(ctx context.Context, fn func(context.Context, registry.TxRepository) error) error {
	return r.withTx(ctx, func(t *txRepo) error { return fn(ctx, t) })
}

// VesselRepo adapts the store to vessel.RepositoryPort.
type VesselRepo struct{ *Store }

// WithTx runs fn inside a transaction.
func (r VesselRepo) WithTx(ctx context.Context, fn func(context.Context, vessel.TxRepository) error) error {
	return r.withTx(ctx, func(t *txRepo) error { return fn(ctx, t) })
}

// SettlementRepo adapts the store to settlement.RepositoryPort.
type SettlementRepo struct{ *Store }

// WithTx runs fn inside a transaction.
func (r SettlementRepo) WithTx(ctx context.Context, fn func(context.Context, settlement.TxRepository) error) error {
	return r.withTx(ctx, func(t *txRepo) error { return fn(ctx, t) })
}

// MovementRepo adapts the store to movement.RepositoryPort.
type MovementRepo struct{ *Store }

// WithTx runs fn inside a transaction.
func (r MovementRepo) WithTx(ctx context.Context, fn func(context.Context, movement.TxRepository) error) error {
	return r.withTx(ctx, func(t *txRepo) error { return fn(ctx, t) })
}

func (s *Store) Catalog() CatalogRepo       { return CatalogRepo{s} }
func (s *Store) Registry() RegistryRepo     { return RegistryRepo{s} }
func (s *Store) Vessels() VesselRepo        { return VesselRepo{s} }
func (s *Store) Settlement() SettlementRepo { return SettlementRepo{s} }
func (s *Store) Movements() MovementRepo    { return MovementRepo{s} }

// refOf rebuilds a location from its (type, id) columns.
func refOf(kind string, id int64) location.Ref {
	if kind == "" || location.Kind(kind) == location.KindNone {
		return location.Nowhere
	}
	return location.Ref{Kind: location.Kind(kind), ID: id}
}

// refArgs splits a location into its (type, id) columns.
func refArgs(ref location.Ref) (string, int64) {
	if ref.IsNone() {
		return string(location.KindNone), 0
	}
	return string(ref.Kind), ref.ID
}

// notFound maps pgx.ErrNoRows to a NotFound business error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(format, args...)
	}
	return err
}

// mustAffect turns a zero-row write into NotFound.
func mustAffect(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(format, args...)
	}
	return nil
}

// conditions accumulates a WHERE clause with numbered placeholders.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) arg(v any) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

func (c *conditions) add(format string, args ...any) {
	placeholders := make([]any, len(args))
	for i, a := range args {
		placeholders[i] = c.arg(a)
	}
	c.clauses = append(c.clauses, fmt.Sprintf(format, placeholders...))
}

// search matches the text against any of the columns, case-insensitively.
func (c *conditions) search(text string, columns ...string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p := c.arg("%" + text + "%")
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = col + " ILIKE " + p
	}
	c.clauses = append(c.clauses, "("+strings.Join(parts, " OR ")+")")
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// page renders LIMIT/OFFSET for p, or nothing when unpaged.
func (c *conditions) page(p shared.Page) string {
	limit, offset := p.Limit()
	if limit < 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %s OFFSET %s", c.arg(limit), c.arg(offset))
}

// count runs SELECT COUNT(*) over from with the accumulated conditions.
func (c *conditions) count(ctx context.Context, q querier, from string) (int, error) {
	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+from+c.where(), c.args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// collect scans every row with scan.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func exists(ctx context.Context, q querier, sql string, args ...any) (bool, error) {
	var ok bool
	if err := q.QueryRow(ctx, "SELECT EXISTS ("+sql+")", args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
