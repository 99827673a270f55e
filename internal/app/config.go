package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Драйверы хранилища.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config описывает настройки запуска приложения. Значения читаются из
// окружения с префиксом CHECKOUT_.
type Config struct {
	HTTPAddr string
	OpsAddr  string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	WebhookSecret string

	KafkaBrokers string

	IdempotencyCleanupInterval time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска в памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                   ":8080",
		OpsAddr:                    ":9090",
		StorageDriver:              StorageMemory,
		ProviderTimeout:            10 * time.Second,
		IdempotencyCleanupInterval: time.Hour,
	}
}

// LoadConfig читает конфигурацию из переменных окружения поверх значений
// по умолчанию.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("CHECKOUT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.OpsAddr = envString("CHECKOUT_OPS_ADDR", cfg.OpsAddr)

	cfg.StorageDriver = envString("CHECKOUT_STORAGE_DRIVER", cfg.StorageDriver)
	cfg.PostgresDSN = envString("CHECKOUT_POSTGRES_DSN", cfg.PostgresDSN)

	autoMigrate, err := envBool("CHECKOUT_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)
	if err != nil {
		return Config{}, err
	}
	cfg.PostgresAutoMigrate = autoMigrate

	cfg.ProviderBaseURL = envString("CHECKOUT_PROVIDER_BASE_URL", cfg.ProviderBaseURL)
	cfg.ProviderAPIKey = envString("CHECKOUT_PROVIDER_API_KEY", cfg.ProviderAPIKey)

	providerTimeout, err := envDuration("CHECKOUT_PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout = providerTimeout

	cfg.WebhookSecret = envString("CHECKOUT_WEBHOOK_SECRET", cfg.WebhookSecret)
	cfg.KafkaBrokers = envString("CHECKOUT_KAFKA_BROKERS", cfg.KafkaBrokers)

	cleanupInterval, err := envDuration("CHECKOUT_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.IdempotencyCleanupInterval = cleanupInterval

	return cfg, cfg.Validate()
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("CHECKOUT_POSTGRES_DSN is required for storage driver %q", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	if c.ProviderBaseURL != "" && c.ProviderAPIKey == "" {
		return fmt.Errorf("CHECKOUT_PROVIDER_API_KEY is required when provider base URL is set")
	}

	return nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
