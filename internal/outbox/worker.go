package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/sms"
)

// WorkerConfig tunes the polling loop and retry policy.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	// BaseDelay is multiplied by (retryCount+1) to produce the backoff
	// before the next attempt.
	BaseDelay time.Duration
}

// DefaultWorkerConfig matches the reference polling cadence.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    50,
		MaxRetries:   3,
		BaseDelay:    time.Minute,
	}
}

// Worker drains due outbox entries and dispatches them to the SMS transport.
// Delivery is at-least-once: a crash between dispatch and the status update
// re-attempts the entry rather than dropping it.
type Worker struct {
	repo   Repository
	sender sms.Sender
	cfg    WorkerConfig
	lg     *zap.Logger
	now    func() time.Time

	delivered metric.Int64Counter
	retried   metric.Int64Counter
	failed    metric.Int64Counter
}

// NewWorker creates a Worker. The meter may come from app telemetry; counters
// record delivered, retried, and terminally failed entries.
func NewWorker(repo Repository, sender sms.Sender, cfg WorkerConfig, lg *zap.Logger, meter metric.Meter) (*Worker, error) {
	delivered, err := meter.Int64Counter("outbox.delivered")
	if err != nil {
		return nil, errors.Wrap(err, "delivered counter")
	}
	retried, err := meter.Int64Counter("outbox.retried")
	if err != nil {
		return nil, errors.Wrap(err, "retried counter")
	}
	failed, err := meter.Int64Counter("outbox.failed")
	if err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}

	return &Worker{
		repo:      repo,
		sender:    sender,
		cfg:       cfg,
		lg:        lg,
		now:       time.Now,
		delivered: delivered,
		retried:   retried,
		failed:    failed,
	}, nil
}

// Run polls the outbox on a fixed interval until ctx is canceled. It never
// returns a delivery error; transport failures stay inside the retry loop.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.lg.Info("outbox worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Int("batch_size", w.cfg.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			w.lg.Info("outbox worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain claims and processes one batch of due entries. Exposed separately so
// tests and the standalone worker binary can run single passes.
func (w *Worker) Drain(ctx context.Context) {
	entries, err := w.repo.ClaimDue(ctx, w.cfg.BatchSize, w.now())
	if err != nil {
		w.lg.Error("claim due entries", zap.Error(err))
		return
	}

	for i := range entries {
		w.process(ctx, &entries[i])
	}
}

// process dispatches one claimed entry and records the outcome.
func (w *Worker) process(ctx context.Context, e *Entry) {
	err := w.dispatch(ctx, e)
	if err == nil {
		if err := w.repo.MarkCompleted(ctx, e.ID, w.now()); err != nil {
			w.lg.Error("mark completed", zap.String("entry_id", e.ID), zap.Error(err))
		}
		w.delivered.Add(ctx, 1)
		return
	}

	if e.RetryCount < w.cfg.MaxRetries {
		retryCount := e.RetryCount + 1
		nextAttempt := w.now().Add(w.cfg.BaseDelay * time.Duration(retryCount))
		if rerr := w.repo.Reschedule(ctx, e.ID, retryCount, nextAttempt, err.Error()); rerr != nil {
			w.lg.Error("reschedule entry", zap.String("entry_id", e.ID), zap.Error(rerr))
			return
		}
		w.retried.Add(ctx, 1)
		w.lg.Warn("delivery failed, rescheduled",
			zap.String("entry_id", e.ID),
			zap.Int("retry_count", retryCount),
			zap.Time("next_attempt", nextAttempt),
			zap.Error(err),
		)
		return
	}

	if ferr := w.repo.MarkFailed(ctx, e.ID, err.Error(), w.now()); ferr != nil {
		w.lg.Error("mark failed", zap.String("entry_id", e.ID), zap.Error(ferr))
		return
	}
	w.failed.Add(ctx, 1)
	w.lg.Error("delivery failed terminally",
		zap.String("entry_id", e.ID),
		zap.String("order_id", e.OrderID),
		zap.Int("retry_count", e.RetryCount),
		zap.Error(err),
	)
}

// dispatch routes the entry to its transport by event type.
func (w *Worker) dispatch(ctx context.Context, e *Entry) error {
	switch e.EventType {
	case EventSendSMS:
		p, err := e.SMS()
		if err != nil {
			return errors.Wrap(err, "decode payload")
		}
		return w.sender.Send(ctx, p.Phone, p.Message)
	default:
		return errors.Errorf("unknown event type %q", e.EventType)
	}
}
