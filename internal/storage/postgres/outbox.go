package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/retail-orders/internal/outbox"
)

const (
	insertOutboxSQL = `INSERT INTO outbox_entries (
		id, event_type, order_id, payload, scheduled_for, status, retry_count,
		error_message, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	// The subquery with FOR UPDATE SKIP LOCKED makes the claim atomic: with
	// concurrent workers each due row is handed to exactly one of them.
	claimDueOutboxSQL = `UPDATE outbox_entries SET status = 'PROCESSING', updated_at = $2
	WHERE id IN (
		SELECT id FROM outbox_entries
		WHERE status = 'PENDING' AND scheduled_for <= $2
		ORDER BY scheduled_for
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, event_type, order_id, payload, scheduled_for, status,
		retry_count, error_message, created_at, updated_at`

	completeOutboxSQL = `UPDATE outbox_entries SET status = 'COMPLETED', updated_at = $2
	WHERE id = $1 AND status = 'PROCESSING'`

	rescheduleOutboxSQL = `UPDATE outbox_entries SET status = 'PENDING', retry_count = $2,
		scheduled_for = $3, error_message = $4, updated_at = $3
	WHERE id = $1 AND status = 'PROCESSING'`

	failOutboxSQL = `UPDATE outbox_entries SET status = 'FAILED', error_message = $2, updated_at = $3
	WHERE id = $1 AND status = 'PROCESSING'`

	listFailedOutboxSQL = `SELECT id, event_type, order_id, payload, scheduled_for, status,
		retry_count, error_message, created_at, updated_at
	FROM outbox_entries WHERE status = 'FAILED' ORDER BY updated_at DESC LIMIT $1`
)

var _ outbox.Repository = (*OutboxRepository)(nil)

// OutboxRepository implements outbox.Repository backed by PostgreSQL.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository returns an OutboxRepository over the given store.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Insert writes a PENDING entry. When called under InTx the row commits with
// the originating order transaction.
func (r *OutboxRepository) Insert(ctx context.Context, e *outbox.Entry) error {
	_, err := r.store.db(ctx).Exec(ctx, insertOutboxSQL,
		e.ID, string(e.EventType), e.OrderID, []byte(e.Payload), e.ScheduledFor,
		string(e.Status), e.RetryCount, e.ErrorMessage, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting outbox entry %q: %w", e.ID, err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due PENDING entries.
func (r *OutboxRepository) ClaimDue(ctx context.Context, limit int, now time.Time) ([]outbox.Entry, error) {
	rows, err := r.store.db(ctx).Query(ctx, claimDueOutboxSQL, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claiming due outbox entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanOutboxEntry)
	if err != nil {
		return nil, fmt.Errorf("scanning claimed outbox entries: %w", err)
	}
	return entries, nil
}

// MarkCompleted finishes a delivered entry.
func (r *OutboxRepository) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	_, err := r.store.db(ctx).Exec(ctx, completeOutboxSQL, id, now)
	if err != nil {
		return fmt.Errorf("completing outbox entry %q: %w", id, err)
	}
	return nil
}

// Reschedule returns a failed entry to PENDING for the next attempt.
func (r *OutboxRepository) Reschedule(ctx context.Context, id string, retryCount int, nextAttempt time.Time, errMsg string) error {
	_, err := r.store.db(ctx).Exec(ctx, rescheduleOutboxSQL, id, retryCount, nextAttempt, errMsg)
	if err != nil {
		return fmt.Errorf("rescheduling outbox entry %q: %w", id, err)
	}
	return nil
}

// MarkFailed terminally fails an entry. FAILED rows are never re-claimed.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, errMsg string, now time.Time) error {
	_, err := r.store.db(ctx).Exec(ctx, failOutboxSQL, id, errMsg, now)
	if err != nil {
		return fmt.Errorf("failing outbox entry %q: %w", id, err)
	}
	return nil
}

// ListFailed returns terminally failed entries, most recent first.
func (r *OutboxRepository) ListFailed(ctx context.Context, limit int) ([]outbox.Entry, error) {
	rows, err := r.store.db(ctx).Query(ctx, listFailedOutboxSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying failed outbox entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanOutboxEntry)
	if err != nil {
		return nil, fmt.Errorf("scanning failed outbox entries: %w", err)
	}
	return entries, nil
}

func scanOutboxEntry(row pgx.CollectableRow) (outbox.Entry, error) {
	var e outbox.Entry
	var eventType, status string
	var payload []byte
	err := row.Scan(
		&e.ID, &eventType, &e.OrderID, &payload, &e.ScheduledFor, &status,
		&e.RetryCount, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt,
	)
	e.EventType = outbox.EventType(eventType)
	e.Status = outbox.Status(status)
	e.Payload = payload
	return e, err
}
