package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/retail-orders/internal/domain/affiliate"
)

const (
	selectAffiliateByCodeSQL = `SELECT id, name, code, commission_percentage, active
	FROM affiliates WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	upsertCommissionSQL = `INSERT INTO affiliate_commissions (order_id, affiliate_id, amount, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (order_id) DO UPDATE SET
		affiliate_id = EXCLUDED.affiliate_id,
		amount = EXCLUDED.amount,
		updated_at = EXCLUDED.updated_at`

	insertAffiliateSQL = `INSERT INTO affiliates (id, name, code, commission_percentage, active)
	VALUES ($1, $2, $3, $4, $5)`
)

var _ affiliate.Repository = (*AffiliateRepository)(nil)

// AffiliateRepository implements affiliate.Repository backed by PostgreSQL.
type AffiliateRepository struct {
	store *Store
}

// NewAffiliateRepository returns an AffiliateRepository over the given store.
func NewAffiliateRepository(store *Store) *AffiliateRepository {
	return &AffiliateRepository{store: store}
}

// FindActiveByCode resolves a voucher code to an active marketer,
// case-insensitively. Returns affiliate.ErrNotFound when nothing matches.
func (r *AffiliateRepository) FindActiveByCode(ctx context.Context, code string) (*affiliate.Marketer, error) {
	rows, err := r.store.db(ctx).Query(ctx, selectAffiliateByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("querying affiliate by code %q: %w", code, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMarketer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, affiliate.ErrNotFound
		}
		return nil, fmt.Errorf("scanning affiliate by code %q: %w", code, err)
	}
	return &m, nil
}

// UpsertCommission creates or replaces the single commission row for an
// order. The order_id primary key guarantees at most one row per order.
func (r *AffiliateRepository) UpsertCommission(ctx context.Context, c affiliate.Commission) error {
	_, err := r.store.db(ctx).Exec(ctx, upsertCommissionSQL,
		c.OrderID, c.AffiliateID, c.Amount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting commission for order %q: %w", c.OrderID, err)
	}
	return nil
}

// CreateMarketer persists a new affiliate marketer. Used by seeding.
func (r *AffiliateRepository) CreateMarketer(ctx context.Context, m *affiliate.Marketer) error {
	_, err := r.store.db(ctx).Exec(ctx, insertAffiliateSQL,
		m.ID, m.Name, m.Code, m.CommissionPercentage, m.Active,
	)
	if err != nil {
		return fmt.Errorf("inserting affiliate %q: %w", m.ID, err)
	}
	return nil
}

func scanMarketer(row pgx.CollectableRow) (affiliate.Marketer, error) {
	var m affiliate.Marketer
	err := row.Scan(&m.ID, &m.Name, &m.Code, &m.CommissionPercentage, &m.Active)
	return m, err
}
