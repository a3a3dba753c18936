package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/retail-orders/internal/domain/affiliate"
	"github.com/xenking/retail-orders/internal/domain/ledger"
	"github.com/xenking/retail-orders/internal/domain/notification"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/handler"
	"github.com/xenking/retail-orders/internal/outbox"
	"github.com/xenking/retail-orders/internal/sms"
	"github.com/xenking/retail-orders/internal/storage/postgres"
	"github.com/xenking/retail-orders/pkg/health"
	"github.com/xenking/retail-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the outbox
// delivery worker, and handles graceful shutdown. It is the single wiring
// point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories share one Store so they join the transaction carried by
	// the request context.
	store := postgres.NewStore(pool)
	orderRepo := postgres.NewOrderRepository(store)
	productRepo := postgres.NewProductRepository(store)
	customerRepo := postgres.NewCustomerRepository(store)
	discountRepo := postgres.NewDiscountRepository(store)
	ledgerRepo := postgres.NewLedgerRepository(store)
	affiliateRepo := postgres.NewAffiliateRepository(store)
	templateRepo := postgres.NewTemplateRepository(store)
	outboxRepo := postgres.NewOutboxRepository(store)

	// Domain services.
	poster := ledger.NewPoster(ledgerRepo)
	accruer := affiliate.NewAccruer(affiliateRepo)
	scheduler := notification.NewScheduler(templateRepo, customerRepo, outboxRepo)
	orderService := order.NewService(
		store,
		orderRepo,
		productRepo,
		customerRepo,
		discountRepo,
		poster,
		accruer,
		scheduler,
		lg.Named("orders"),
	)

	// Outbox delivery worker.
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
	worker, err := outbox.NewWorker(outboxRepo, sender, outbox.WorkerConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxRetries:   cfg.Outbox.MaxRetries,
		BaseDelay:    cfg.Outbox.BaseDelay,
	}, lg.Named("outbox"), m.MeterProvider().Meter("retail-orders"))
	if err != nil {
		return errors.Wrap(err, "create outbox worker")
	}

	// HTTP handlers.
	h := handler.NewHandler(orderService, outboxRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("retail-api", m.MeterProvider().Meter("retail-api")),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	<-shutdownDone
	return nil
}
