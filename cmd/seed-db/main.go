package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-orders/internal/domain/affiliate"
	"github.com/xenking/retail-orders/internal/domain/customer"
	"github.com/xenking/retail-orders/internal/domain/discount"
	"github.com/xenking/retail-orders/internal/domain/notification"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/storage/postgres"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewStore(pool)

	if err := seedCatalog(ctx, postgres.NewProductRepository(store)); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCustomers(ctx, postgres.NewCustomerRepository(store)); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedAffiliates(ctx, postgres.NewAffiliateRepository(store)); err != nil {
		return errors.Wrap(err, "seed affiliates")
	}
	if err := seedDiscounts(ctx, postgres.NewDiscountRepository(store)); err != nil {
		return errors.Wrap(err, "seed discounts")
	}
	if err := seedTemplates(ctx, postgres.NewTemplateRepository(store)); err != nil {
		return errors.Wrap(err, "seed templates")
	}

	return nil
}

func seedCatalog(ctx context.Context, repo *postgres.ProductRepository) error {
	slog.Info("seeding categories and products")

	categories := []struct {
		id, name, parent string
	}{
		{"electronics", "Electronics", ""},
		{"phones", "Phones", "electronics"},
		{"laptops", "Laptops", "electronics"},
		{"grocery", "Grocery", ""},
		{"snacks", "Snacks", "grocery"},
		{"drinks", "Drinks", "grocery"},
	}
	for _, c := range categories {
		if err := repo.CreateCategory(ctx, c.id, c.name, c.parent); err != nil {
			return errors.Wrapf(err, "category %s", c.id)
		}
	}

	products := []product.Product{
		{ID: "phone-basic", Name: "Basic Phone", Price: decimal.NewFromInt(100), SubcategoryID: "phones"},
		{ID: "phone-pro", Name: "Pro Phone", Price: decimal.NewFromInt(900), SubcategoryID: "phones"},
		{ID: "laptop-air", Name: "Air Laptop", Price: decimal.NewFromInt(1200), SubcategoryID: "laptops"},
		{ID: "cola-can", Name: "Cola Can", Price: decimal.RequireFromString("1.50"), SubcategoryID: "drinks"},
		{ID: "chips-bag", Name: "Chips Bag", Price: decimal.RequireFromString("2.25"), SubcategoryID: "snacks"},
	}
	for _, p := range products {
		if err := repo.CreateProduct(ctx, &p); err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}
		slog.Info("created product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCustomers(ctx context.Context, repo *postgres.CustomerRepository) error {
	slog.Info("seeding customers")

	customers := []customer.Customer{
		{ID: "cust-1", Name: "Alice Morgan", Phone: "+15550000001"},
		{ID: "cust-2", Name: "Bob Chen", Phone: "+15550000002"},
	}
	for _, c := range customers {
		if err := repo.Create(ctx, &c); err != nil {
			return errors.Wrapf(err, "customer %s", c.ID)
		}
	}

	return nil
}

func seedAffiliates(ctx context.Context, repo *postgres.AffiliateRepository) error {
	slog.Info("seeding affiliate marketers")

	marketers := []affiliate.Marketer{
		{
			ID:                   "aff-1",
			Name:                 "Jordan Reach",
			Code:                 "JORDAN15",
			CommissionPercentage: decimal.NewFromInt(5),
			Active:               true,
		},
	}
	for _, m := range marketers {
		if err := repo.CreateMarketer(ctx, &m); err != nil {
			return errors.Wrapf(err, "marketer %s", m.ID)
		}
	}

	return nil
}

func seedDiscounts(ctx context.Context, repo *postgres.DiscountRepository) error {
	slog.Info("seeding discount rules")

	now := time.Now()
	year := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	rules := []discount.Rule{
		{
			ID:        "disc-spring-all",
			Name:      "Spring sale 5% off everything",
			Type:      discount.AllProducts,
			ValueType: discount.Percentage,
			Value:     decimal.NewFromInt(5),
			Scope:     discount.OrderTotal,
			StartDate: year,
			EndDate:   year.AddDate(1, 0, 0),
			Active:    true,
		},
		{
			ID:            "disc-summer20",
			Name:          "SUMMER20 voucher",
			Type:          discount.AllProducts,
			ValueType:     discount.Percentage,
			Value:         decimal.NewFromInt(20),
			Scope:         discount.OrderTotal,
			StartDate:     year,
			EndDate:       year.AddDate(1, 0, 0),
			VoucherCode:   "SUMMER20",
			MaxUsageCount: 1000,
			MinOrderValue: decimal.NewFromInt(50),
			Active:        true,
		},
		{
			ID:          "disc-jordan15",
			Name:        "JORDAN15 affiliate voucher",
			Type:        discount.SelectedCategories,
			ValueType:   discount.Percentage,
			Value:       decimal.NewFromInt(15),
			Scope:       discount.PerProduct,
			StartDate:   year,
			EndDate:     year.AddDate(1, 0, 0),
			VoucherCode: "JORDAN15",
			Active:      true,
			CategoryIDs: []string{"electronics"},
		},
	}
	for _, r := range rules {
		if err := repo.Create(ctx, &r); err != nil {
			return errors.Wrapf(err, "rule %s", r.ID)
		}
		slog.Info("created discount rule", slog.String("id", r.ID), slog.String("name", r.Name))
	}

	return nil
}

func seedTemplates(ctx context.Context, repo *postgres.TemplateRepository) error {
	slog.Info("seeding notification templates")

	templates := []notification.Template{
		{
			ID:        "tpl-placed",
			Event:     notification.EventOrderPlaced,
			Body:      "Hi {{customerName}}, order {{orderNumber}} received. Total: {{orderTotal}}.",
			Active:    true,
			SendCount: 1,
		},
		{
			ID:        "tpl-confirmed",
			Event:     notification.EventPlacedToConfirmed,
			Body:      "Order {{orderNumber}} is confirmed. Receipt: {{receiptNumber}}.",
			Active:    true,
			SendCount: 1,
		},
		{
			ID:         "tpl-shipping",
			Event:      notification.EventProcessingToShipping,
			OrderClass: order.ClassDelivery,
			Body:       "Order {{orderNumber}} is on its way to you.",
			Active:     true,
			SendCount:  1,
		},
		{
			ID:        "tpl-delivered",
			Event:     notification.EventShippingToDelivered,
			Body:      "Order {{orderNumber}} was delivered. Thank you, {{customerName}}!",
			Active:    true,
			SendCount: 1,
		},
		{
			ID:        "tpl-payment-failed",
			Event:     notification.EventPaymentFailed,
			Body:      "Payment for order {{orderNumber}} failed. Please retry.",
			Active:    true,
			SendCount: 3,
			SendDelay: 30,
		},
		{
			ID:        "tpl-canceled",
			Event:     notification.EventOrderCanceled,
			Body:      "Order {{orderNumber}} was canceled.",
			Active:    true,
			SendCount: 1,
		},
	}
	for _, t := range templates {
		if err := repo.Create(ctx, &t); err != nil {
			return errors.Wrapf(err, "template %s", t.ID)
		}
		slog.Info("created template", slog.String("id", t.ID), slog.String("event", string(t.Event)))
	}

	return nil
}
