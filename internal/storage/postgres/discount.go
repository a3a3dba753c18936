package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/retail-orders/internal/domain/discount"
)

const (
	selectActiveDiscountsSQL = `SELECT id, name, discount_type, value_type, value, scope,
		start_date, end_date, voucher_code, max_usage_count, usage_count,
		min_order_value, active
	FROM discounts
	WHERE active AND start_date <= $1 AND end_date >= $1
	ORDER BY created_at, id`

	selectDiscountSQL = `SELECT id, name, discount_type, value_type, value, scope,
		start_date, end_date, voucher_code, max_usage_count, usage_count,
		min_order_value, active
	FROM discounts WHERE id = $1`

	selectDiscountProductsSQL = `SELECT discount_id, product_id FROM discount_products
	WHERE discount_id = ANY($1)`

	selectDiscountCategoriesSQL = `SELECT discount_id, category_id FROM discount_categories
	WHERE discount_id = ANY($1)`

	insertDiscountSQL = `INSERT INTO discounts (id, name, discount_type, value_type, value,
		scope, start_date, end_date, voucher_code, max_usage_count, min_order_value, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	upsertDiscountSQL = `INSERT INTO discounts (id, name, discount_type, value_type, value,
		scope, start_date, end_date, voucher_code, max_usage_count, min_order_value, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, discount_type = EXCLUDED.discount_type,
		value_type = EXCLUDED.value_type, value = EXCLUDED.value,
		scope = EXCLUDED.scope, start_date = EXCLUDED.start_date,
		end_date = EXCLUDED.end_date, voucher_code = EXCLUDED.voucher_code,
		max_usage_count = EXCLUDED.max_usage_count,
		min_order_value = EXCLUDED.min_order_value, active = EXCLUDED.active`

	insertDiscountProductSQL = `INSERT INTO discount_products (discount_id, product_id)
	VALUES ($1, $2) ON CONFLICT DO NOTHING`

	insertDiscountCategorySQL = `INSERT INTO discount_categories (discount_id, category_id)
	VALUES ($1, $2) ON CONFLICT DO NOTHING`

	incrementDiscountUsageSQL = `UPDATE discounts SET usage_count = usage_count + 1 WHERE id = $1`
)

// ErrDiscountNotFound is returned when a discount rule does not exist.
var ErrDiscountNotFound = errors.New("discount not found")

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	store *Store
}

// NewDiscountRepository returns a DiscountRepository over the given store.
func NewDiscountRepository(store *Store) *DiscountRepository {
	return &DiscountRepository{store: store}
}

// ActiveRules returns active rules whose window contains at, in stable load
// order, with product/category association sets resolved. Load order is the
// rule evaluation order: the engine's first-match-wins policy depends on it.
func (r *DiscountRepository) ActiveRules(ctx context.Context, at time.Time) ([]discount.Rule, error) {
	db := r.store.db(ctx)

	rows, err := db.Query(ctx, selectActiveDiscountsSQL, at)
	if err != nil {
		return nil, fmt.Errorf("querying active discounts: %w", err)
	}
	rules, err := pgx.CollectRows(rows, scanDiscountRule)
	if err != nil {
		return nil, fmt.Errorf("scanning active discounts: %w", err)
	}
	if len(rules) == 0 {
		return rules, nil
	}

	ids := make([]string, len(rules))
	index := make(map[string]*discount.Rule, len(rules))
	for i := range rules {
		ids[i] = rules[i].ID
		index[rules[i].ID] = &rules[i]
	}

	if err := r.loadAssociations(ctx, db, ids, index); err != nil {
		return nil, err
	}
	return rules, nil
}

// Get loads a single rule with its association sets.
func (r *DiscountRepository) Get(ctx context.Context, id string) (*discount.Rule, error) {
	db := r.store.db(ctx)

	rows, err := db.Query(ctx, selectDiscountSQL, id)
	if err != nil {
		return nil, fmt.Errorf("querying discount %q: %w", id, err)
	}
	rule, err := pgx.CollectExactlyOneRow(rows, scanDiscountRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDiscountNotFound
		}
		return nil, fmt.Errorf("scanning discount %q: %w", id, err)
	}

	index := map[string]*discount.Rule{rule.ID: &rule}
	if err := r.loadAssociations(ctx, db, []string{rule.ID}, index); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create persists a rule and its association rows.
func (r *DiscountRepository) Create(ctx context.Context, rule *discount.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	db := r.store.db(ctx)

	_, err := db.Exec(ctx, insertDiscountSQL,
		rule.ID, rule.Name, string(rule.Type), string(rule.ValueType), rule.Value,
		string(rule.Scope), rule.StartDate, rule.EndDate, rule.VoucherCode,
		rule.MaxUsageCount, rule.MinOrderValue, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("inserting discount %q: %w", rule.ID, err)
	}

	for _, pid := range rule.ProductIDs {
		if _, err := db.Exec(ctx, insertDiscountProductSQL, rule.ID, pid); err != nil {
			return fmt.Errorf("inserting discount product %q: %w", pid, err)
		}
	}
	for _, cid := range rule.CategoryIDs {
		if _, err := db.Exec(ctx, insertDiscountCategorySQL, rule.ID, cid); err != nil {
			return fmt.Errorf("inserting discount category %q: %w", cid, err)
		}
	}
	return nil
}

// UpsertRule inserts or replaces a rule by ID. Used by bulk voucher ingest,
// which must be re-runnable.
func (r *DiscountRepository) UpsertRule(ctx context.Context, rule *discount.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := r.store.db(ctx).Exec(ctx, upsertDiscountSQL,
		rule.ID, rule.Name, string(rule.Type), string(rule.ValueType), rule.Value,
		string(rule.Scope), rule.StartDate, rule.EndDate, rule.VoucherCode,
		rule.MaxUsageCount, rule.MinOrderValue, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting discount %q: %w", rule.ID, err)
	}
	return nil
}

// IncrementUsage bumps the rule's usage counter.
func (r *DiscountRepository) IncrementUsage(ctx context.Context, id string) error {
	tag, err := r.store.db(ctx).Exec(ctx, incrementDiscountUsageSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing usage of discount %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDiscountNotFound
	}
	return nil
}

func (r *DiscountRepository) loadAssociations(ctx context.Context, db DB, ids []string, index map[string]*discount.Rule) error {
	rows, err := db.Query(ctx, selectDiscountProductsSQL, ids)
	if err != nil {
		return fmt.Errorf("querying discount products: %w", err)
	}
	var discountID, memberID string
	if _, err := pgx.ForEachRow(rows, []any{&discountID, &memberID}, func() error {
		if rule := index[discountID]; rule != nil {
			rule.ProductIDs = append(rule.ProductIDs, memberID)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("scanning discount products: %w", err)
	}

	rows, err = db.Query(ctx, selectDiscountCategoriesSQL, ids)
	if err != nil {
		return fmt.Errorf("querying discount categories: %w", err)
	}
	if _, err := pgx.ForEachRow(rows, []any{&discountID, &memberID}, func() error {
		if rule := index[discountID]; rule != nil {
			rule.CategoryIDs = append(rule.CategoryIDs, memberID)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("scanning discount categories: %w", err)
	}
	return nil
}

func scanDiscountRule(row pgx.CollectableRow) (discount.Rule, error) {
	var rule discount.Rule
	var dType, vType, scope string
	err := row.Scan(
		&rule.ID, &rule.Name, &dType, &vType, &rule.Value, &scope,
		&rule.StartDate, &rule.EndDate, &rule.VoucherCode,
		&rule.MaxUsageCount, &rule.UsageCount, &rule.MinOrderValue, &rule.Active,
	)
	rule.Type = discount.Type(dType)
	rule.ValueType = discount.ValueType(vType)
	rule.Scope = discount.Scope(scope)
	return rule, err
}
