package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type rescheduleCall struct {
	id          string
	retryCount  int
	nextAttempt time.Time
	errMsg      string
}

type mockRepo struct {
	due         []Entry
	completed   []string
	rescheduled []rescheduleCall
	failed      []string
}

func (m *mockRepo) Insert(_ context.Context, _ *Entry) error { return nil }

func (m *mockRepo) ClaimDue(_ context.Context, limit int, _ time.Time) ([]Entry, error) {
	if len(m.due) > limit {
		return m.due[:limit], nil
	}
	return m.due, nil
}

func (m *mockRepo) MarkCompleted(_ context.Context, id string, _ time.Time) error {
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockRepo) Reschedule(_ context.Context, id string, retryCount int, nextAttempt time.Time, errMsg string) error {
	m.rescheduled = append(m.rescheduled, rescheduleCall{id, retryCount, nextAttempt, errMsg})
	return nil
}

func (m *mockRepo) MarkFailed(_ context.Context, id string, _ string, _ time.Time) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *mockRepo) ListFailed(_ context.Context, _ int) ([]Entry, error) { return nil, nil }

type sentSMS struct {
	phone   string
	message string
}

type mockSender struct {
	sent []sentSMS
	err  error
}

func (m *mockSender) Send(_ context.Context, phone, message string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentSMS{phone: phone, message: message})
	return nil
}

// --- Helpers ---

func smsEntry(t *testing.T, id string, retryCount int) Entry {
	t.Helper()

	payload, err := json.Marshal(SMSPayload{
		Phone:      "+15550000001",
		Message:    "your order shipped",
		TemplateID: "tpl-1",
	})
	require.NoError(t, err)

	return Entry{
		ID:           id,
		EventType:    EventSendSMS,
		OrderID:      "o1",
		Payload:      payload,
		ScheduledFor: testNow.Add(-time.Minute),
		Status:       StatusProcessing,
		RetryCount:   retryCount,
	}
}

func newWorker(t *testing.T, repo *mockRepo, sender *mockSender) *Worker {
	t.Helper()

	w, err := NewWorker(repo, sender, WorkerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    50,
		MaxRetries:   3,
		BaseDelay:    time.Minute,
	}, zap.NewNop(), noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	w.now = func() time.Time { return testNow }
	return w
}

// --- Tests ---

func TestDrain_DeliversAndCompletes(t *testing.T) {
	repo := &mockRepo{due: []Entry{smsEntry(t, "e1", 0), smsEntry(t, "e2", 0)}}
	sender := &mockSender{}
	w := newWorker(t, repo, sender)

	w.Drain(context.Background())

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "+15550000001", sender.sent[0].phone)
	assert.Equal(t, "your order shipped", sender.sent[0].message)
	assert.Equal(t, []string{"e1", "e2"}, repo.completed)
	assert.Empty(t, repo.rescheduled)
	assert.Empty(t, repo.failed)
}

func TestDrain_FailureReschedulesWithLinearBackoff(t *testing.T) {
	tests := []struct {
		retryCount int
		backoff    time.Duration
	}{
		{retryCount: 0, backoff: time.Minute},
		{retryCount: 1, backoff: 2 * time.Minute},
		{retryCount: 2, backoff: 3 * time.Minute},
	}
	for _, tt := range tests {
		repo := &mockRepo{due: []Entry{smsEntry(t, "e1", tt.retryCount)}}
		sender := &mockSender{err: errors.New("provider unavailable")}
		w := newWorker(t, repo, sender)

		w.Drain(context.Background())

		require.Len(t, repo.rescheduled, 1, "retryCount %d", tt.retryCount)
		call := repo.rescheduled[0]
		assert.Equal(t, tt.retryCount+1, call.retryCount)
		assert.Equal(t, testNow.Add(tt.backoff), call.nextAttempt)
		assert.Equal(t, "provider unavailable", call.errMsg)
		assert.Empty(t, repo.failed)
		assert.Empty(t, repo.completed)
	}
}

func TestDrain_ExhaustedRetriesFailTerminally(t *testing.T) {
	repo := &mockRepo{due: []Entry{smsEntry(t, "e1", 3)}}
	sender := &mockSender{err: errors.New("provider unavailable")}
	w := newWorker(t, repo, sender)

	w.Drain(context.Background())

	assert.Equal(t, []string{"e1"}, repo.failed)
	assert.Empty(t, repo.rescheduled)
}

func TestDrain_UnknownEventTypeFails(t *testing.T) {
	e := smsEntry(t, "e1", 3)
	e.EventType = "SEND_PIGEON"
	repo := &mockRepo{due: []Entry{e}}
	sender := &mockSender{}
	w := newWorker(t, repo, sender)

	w.Drain(context.Background())

	assert.Empty(t, sender.sent)
	assert.Equal(t, []string{"e1"}, repo.failed)
}

func TestDrain_RespectsBatchSize(t *testing.T) {
	repo := &mockRepo{}
	for i := 0; i < 100; i++ {
		repo.due = append(repo.due, smsEntry(t, "e", 0))
	}
	sender := &mockSender{}
	w := newWorker(t, repo, sender)

	w.Drain(context.Background())

	assert.Len(t, sender.sent, 50)
}
