package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

// Dependencies содержит хранилища и внешние клиенты приложения.
type Dependencies struct {
	Orders      domain.OrderRepository
	Carts       domain.CartService
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository
	Provider    domain.PaymentProvider

	// Store не nil только для postgres-драйвера.
	Store *postgres.Store

	Logger *log.Entry
}

// NewDependencies собирает зависимости согласно конфигурации. Без
// CHECKOUT_PROVIDER_BASE_URL используется встроенный мок провайдера —
// этого достаточно для локальной разработки, но не для production.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case StoragePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}
		deps.Store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Carts = postgres.NewCartRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")

	case StorageMemory:
		deps.Orders = memory.NewOrderRepository()
		deps.Carts = memory.NewCartStore()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Info("in-memory storage initialized")

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.ProviderBaseURL != "" {
		client := payment.NewClient(payment.ClientConfig{
			BaseURL:     cfg.ProviderBaseURL,
			APIKey:      cfg.ProviderAPIKey,
			HTTPTimeout: cfg.ProviderTimeout,
		}, logger.WithField("component", "payment-client"))
		deps.Provider = payment.NewRetryableProvider(
			client,
			payment.DefaultRetryConfig(),
			logger.WithField("component", "payment-retry"),
		)
		logger.WithField("base_url", cfg.ProviderBaseURL).Info("payment provider client initialized")
	} else {
		deps.Provider = payment.NewMockProvider()
		logger.Warn("payment provider base URL is empty, using mock provider")
	}

	return deps, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
