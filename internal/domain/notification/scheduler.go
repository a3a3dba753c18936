package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/retail-orders/internal/domain/customer"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/outbox"
)

// Scheduler resolves triggers, renders matching templates, and writes outbox
// rows. It implements order.Notifier and runs inside the caller's
// transaction: the rows commit or roll back with the order change.
type Scheduler struct {
	templates Repository
	customers customer.Repository
	entries   outbox.Repository
	now       func() time.Time
}

// NewScheduler creates a Scheduler over the given repositories.
func NewScheduler(templates Repository, customers customer.Repository, entries outbox.Repository) *Scheduler {
	return &Scheduler{
		templates: templates,
		customers: customers,
		entries:   entries,
		now:       time.Now,
	}
}

var _ order.Notifier = (*Scheduler)(nil)

// OrderPlaced schedules the explicit creation-time event.
func (s *Scheduler) OrderPlaced(ctx context.Context, o *order.Order) error {
	return s.schedule(ctx, EventOrderPlaced, o)
}

// StatusChanged resolves the transition to at most one event and schedules
// its templates. A transition with no mapped event schedules nothing.
func (s *Scheduler) StatusChanged(
	ctx context.Context,
	o *order.Order,
	oldF, newF order.FulfillmentStatus,
	oldP, newP order.PaymentStatus,
) error {
	event, ok := ResolveTrigger(oldF, newF, oldP, newP)
	if !ok {
		return nil
	}
	return s.schedule(ctx, event, o)
}

// schedule renders every active matching template once and inserts
// template.SendCount outbox rows per template, spaced template.SendDelay
// minutes apart starting one delay from now. The delay compounds per repeat:
// rows land at now+D, now+2D, ..., now+N*D.
func (s *Scheduler) schedule(ctx context.Context, event Event, o *order.Order) error {
	templates, err := s.templates.ActiveForEvent(ctx, event, o.Class)
	if err != nil {
		return errors.Wrap(err, "load templates")
	}
	if len(templates) == 0 {
		return nil
	}

	cust, err := s.customers.Get(ctx, o.CustomerID)
	if err != nil {
		return errors.Wrap(err, "load customer")
	}

	data := BuildTokenData(o, cust)
	now := s.now()

	for _, t := range templates {
		message := Render(t.Body, data)
		payload, err := json.Marshal(outbox.SMSPayload{
			Phone:      cust.Phone,
			Message:    message,
			TemplateID: t.ID,
		})
		if err != nil {
			return errors.Wrap(err, "marshal payload")
		}

		for i := 1; i <= t.SendCount; i++ {
			entry := &outbox.Entry{
				ID:           uuid.New().String(),
				EventType:    outbox.EventSendSMS,
				OrderID:      o.ID,
				Payload:      payload,
				ScheduledFor: now.Add(time.Duration(i*t.SendDelay) * time.Minute),
				Status:       outbox.StatusPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.entries.Insert(ctx, entry); err != nil {
				return errors.Wrapf(err, "insert outbox entry for template %s", t.ID)
			}
		}
	}
	return nil
}
