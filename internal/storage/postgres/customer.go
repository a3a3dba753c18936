package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/retail-orders/internal/domain/customer"
)

const (
	selectCustomerSQL = `SELECT id, name, phone FROM customers WHERE id = $1`

	insertCustomerSQL = `INSERT INTO customers (id, name, phone) VALUES ($1, $2, $3)`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	store *Store
}

// NewCustomerRepository returns a CustomerRepository over the given store.
func NewCustomerRepository(store *Store) *CustomerRepository {
	return &CustomerRepository{store: store}
}

// Get loads the customer contact snapshot.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := r.store.db(ctx).Query(ctx, selectCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("querying customer %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("scanning customer %q: %w", id, err)
	}
	return &c, nil
}

// Create persists a customer. Used by seeding.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	_, err := r.store.db(ctx).Exec(ctx, insertCustomerSQL, c.ID, c.Name, c.Phone)
	if err != nil {
		return fmt.Errorf("inserting customer %q: %w", c.ID, err)
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone)
	return c, err
}
