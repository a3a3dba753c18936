package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/retail-orders/internal/app"
	"github.com/xenking/retail-orders/internal/outbox"
	"github.com/xenking/retail-orders/internal/sms"
	"github.com/xenking/retail-orders/internal/storage/postgres"
)

// Standalone outbox delivery worker. The API server runs an embedded worker;
// this binary exists for deployments that scale delivery separately from the
// API.
func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}

		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		store := postgres.NewStore(pool)
		repo := postgres.NewOutboxRepository(store)

		var sender sms.Sender
		if cfg.SMS.URL != "" {
			sender = sms.NewHTTPSender(sms.Config{
				URL:        cfg.SMS.URL,
				APIKey:     cfg.SMS.APIKey,
				SenderName: cfg.SMS.SenderName,
				Timeout:    cfg.SMS.Timeout,
			})
		} else {
			sender = sms.NewNopSender(lg.Named("sms"))
		}

		worker, err := outbox.NewWorker(repo, sender, outbox.WorkerConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
			MaxRetries:   cfg.Outbox.MaxRetries,
			BaseDelay:    cfg.Outbox.BaseDelay,
		}, lg.Named("outbox"), m.MeterProvider().Meter("retail-outbox"))
		if err != nil {
			return errors.Wrap(err, "create outbox worker")
		}

		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
