// Package outbox implements the transactional outbox: notification intents
// are written in the same database transaction as the order state change that
// caused them, then delivered asynchronously by a polling worker.
package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an outbox entry.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// EventType identifies the kind of deferred work an entry represents.
type EventType string

// EventSendSMS schedules an SMS delivery.
const EventSendSMS EventType = "SEND_SMS"

// SMSPayload is the JSON payload of a SEND_SMS entry. The message is rendered
// once at schedule time; later template edits never affect queued rows.
type SMSPayload struct {
	Phone      string `json:"phone"`
	Message    string `json:"message"`
	TemplateID string `json:"templateId"`
}

// Entry is one scheduled delivery attempt group. Rows are created inside the
// originating order transaction and mutated only by the worker afterwards.
// Rows are never deleted; FAILED is terminal.
type Entry struct {
	ID           string
	EventType    EventType
	OrderID      string
	Payload      json.RawMessage
	ScheduledFor time.Time
	Status       Status
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SMS decodes the entry payload as an SMSPayload.
func (e *Entry) SMS() (SMSPayload, error) {
	var p SMSPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// Repository defines persistence for outbox entries. ClaimDue must be atomic:
// an entry is claimed by exactly one worker even with concurrent pollers.
type Repository interface {
	// Insert writes a new PENDING entry inside the transaction carried by ctx.
	Insert(ctx context.Context, e *Entry) error
	// ClaimDue atomically moves up to limit due PENDING entries to PROCESSING
	// and returns them, ordered by scheduled time.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]Entry, error)
	// MarkCompleted finishes a successfully delivered entry.
	MarkCompleted(ctx context.Context, id string, now time.Time) error
	// Reschedule returns a failed entry to PENDING with the new retry count,
	// next attempt time, and last error message.
	Reschedule(ctx context.Context, id string, retryCount int, nextAttempt time.Time, errMsg string) error
	// MarkFailed terminally fails an entry after the retry ceiling.
	MarkFailed(ctx context.Context, id string, errMsg string, now time.Time) error
	// ListFailed returns terminally failed entries for manual inspection.
	ListFailed(ctx context.Context, limit int) ([]Entry, error)
}
