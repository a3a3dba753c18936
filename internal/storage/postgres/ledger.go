package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/retail-orders/internal/domain/ledger"
)

const (
	existsLedgerEntriesSQL = `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE order_id = $1)`

	insertLedgerEntrySQL = `INSERT INTO ledger_entries (
		id, order_id, account_code, side, amount, reversal, memo, posted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectLedgerEntriesSQL = `SELECT id, order_id, account_code, side, amount, reversal, memo, posted_at
	FROM ledger_entries WHERE order_id = $1 ORDER BY posted_at, id`
)

var _ ledger.Repository = (*LedgerRepository)(nil)

// LedgerRepository implements ledger.Repository backed by PostgreSQL.
type LedgerRepository struct {
	store *Store
}

// NewLedgerRepository returns a LedgerRepository over the given store.
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// ExistsForOrder reports whether any entries are posted for the order.
func (r *LedgerRepository) ExistsForOrder(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.store.db(ctx).QueryRow(ctx, existsLedgerEntriesSQL, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking ledger entries for order %q: %w", orderID, err)
	}
	return exists, nil
}

// PostPair writes both entries of a balanced pair. Runs inside the caller's
// transaction so a partial pair can never commit.
func (r *LedgerRepository) PostPair(ctx context.Context, debit, credit ledger.Entry) error {
	db := r.store.db(ctx)
	for _, e := range []ledger.Entry{debit, credit} {
		_, err := db.Exec(ctx, insertLedgerEntrySQL,
			e.ID, e.OrderID, e.AccountCode, string(e.Side), e.Amount, e.Reversal, e.Memo, e.PostedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting ledger entry %q: %w", e.ID, err)
		}
	}
	return nil
}

// EntriesForOrder returns all entries posted for the order in posting order.
func (r *LedgerRepository) EntriesForOrder(ctx context.Context, orderID string) ([]ledger.Entry, error) {
	rows, err := r.store.db(ctx).Query(ctx, selectLedgerEntriesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying ledger entries for order %q: %w", orderID, err)
	}
	entries, err := pgx.CollectRows(rows, scanLedgerEntry)
	if err != nil {
		return nil, fmt.Errorf("scanning ledger entries for order %q: %w", orderID, err)
	}
	return entries, nil
}

func scanLedgerEntry(row pgx.CollectableRow) (ledger.Entry, error) {
	var e ledger.Entry
	var side string
	err := row.Scan(&e.ID, &e.OrderID, &e.AccountCode, &side, &e.Amount, &e.Reversal, &e.Memo, &e.PostedAt)
	e.Side = ledger.Side(side)
	return e, err
}
