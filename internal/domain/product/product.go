package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Price is the
// current catalog price; orders snapshot it at creation time.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	SubcategoryID string
	CategoryID    string // parent of SubcategoryID, resolved on load
	SalesCount    int64
}

// Repository defines catalog operations used by the order flow.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs batch-fetches products with category parents resolved.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// IncrementSales adds qty to the product's cumulative sales counter.
	IncrementSales(ctx context.Context, id string, qty int) error
}
