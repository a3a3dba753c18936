package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/retail-orders/internal/domain/notification"
	"github.com/xenking/retail-orders/internal/domain/order"
)

const (
	selectTemplatesForEventSQL = `SELECT id, event, order_class, body, active,
		send_count, send_delay, priority, created_at
	FROM notification_templates
	WHERE active AND event = $1 AND (order_class = '' OR order_class = $2)
	ORDER BY priority, id`

	insertTemplateSQL = `INSERT INTO notification_templates (
		id, event, order_class, body, active, send_count, send_delay, priority, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

var _ notification.Repository = (*TemplateRepository)(nil)

// TemplateRepository implements notification.Repository backed by PostgreSQL.
type TemplateRepository struct {
	store *Store
}

// NewTemplateRepository returns a TemplateRepository over the given store.
func NewTemplateRepository(store *Store) *TemplateRepository {
	return &TemplateRepository{store: store}
}

// ActiveForEvent returns active templates matching the event whose class
// filter is empty (wildcard) or equals class, ordered by priority ascending.
func (r *TemplateRepository) ActiveForEvent(ctx context.Context, event notification.Event, class order.Class) ([]notification.Template, error) {
	rows, err := r.store.db(ctx).Query(ctx, selectTemplatesForEventSQL, string(event), string(class))
	if err != nil {
		return nil, fmt.Errorf("querying templates for event %q: %w", event, err)
	}
	templates, err := pgx.CollectRows(rows, scanTemplate)
	if err != nil {
		return nil, fmt.Errorf("scanning templates for event %q: %w", event, err)
	}
	return templates, nil
}

// Create validates and persists a template. Unknown tokens are rejected here,
// before any write.
func (r *TemplateRepository) Create(ctx context.Context, t *notification.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.store.db(ctx).Exec(ctx, insertTemplateSQL,
		t.ID, string(t.Event), string(t.OrderClass), t.Body, t.Active,
		t.SendCount, t.SendDelay, t.Priority, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting template %q: %w", t.ID, err)
	}
	return nil
}

func scanTemplate(row pgx.CollectableRow) (notification.Template, error) {
	var t notification.Template
	var event, class string
	err := row.Scan(
		&t.ID, &event, &class, &t.Body, &t.Active,
		&t.SendCount, &t.SendDelay, &t.Priority, &t.CreatedAt,
	)
	t.Event = notification.Event(event)
	t.OrderClass = order.Class(class)
	return t, err
}
