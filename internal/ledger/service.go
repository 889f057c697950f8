package ledger

import (
	"context"

	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// Service answers read-side ledger queries. Reads are snapshots and are never
// used as the basis of a mutation.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Position returns on hand, committed and floored available quantity.
func (s *Service) Position(ctx context.Context, productID int64) (Position, error) {
	item, err := s.repo.GetItem(ctx, productID)
	if err != nil {
		return Position{}, err
	}
	return PositionOf(item), nil
}

// Balances lists every location holding the product.
func (s *Service) Balances(ctx context.Context, productID int64) ([]Balance, error) {
	if _, err := s.repo.GetItem(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListBalances(ctx, productID)
}

// StockCard lists stock card entries for a product.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]StockEntry, error) {
	if filter.ProductID <= 0 {
		return nil, shared.Validation("product is required")
	}
	if filter.Location != nil {
		if err := filter.Location.Validate(); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.GetStockCard(ctx, filter)
}
