package payment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// RetryConfig конфигурация для retry логики при обращениях к провайдеру.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryableProvider оборачивает PaymentProvider retry логикой.
// Повторяется только GetIntent: чтение свободно от побочных эффектов.
// CreateIntent не идемпотентен, его повтор мог бы породить дубликаты intent.
type RetryableProvider struct {
	provider domain.PaymentProvider
	config   RetryConfig
	logger   *log.Entry
}

// NewRetryableProvider создаёт провайдера с retry логикой поверх переданного.
func NewRetryableProvider(provider domain.PaymentProvider, config RetryConfig, logger *log.Entry) *RetryableProvider {
	if logger == nil {
		logger = log.New().WithField("component", "retryable-provider")
	}

	return &RetryableProvider{
		provider: provider,
		config:   config,
		logger:   logger,
	}
}

// CreateIntent проксирует вызов без повторов.
func (rp *RetryableProvider) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (domain.PaymentIntent, error) {
	return rp.provider.CreateIntent(ctx, req)
}

// GetIntent читает intent с экспоненциальным backoff при временных ошибках.
func (rp *RetryableProvider) GetIntent(ctx context.Context, id string) (domain.PaymentIntent, error) {
	var lastErr error
	delay := rp.config.InitialDelay

	for attempt := 1; attempt <= rp.config.MaxAttempts; attempt++ {
		intent, err := rp.provider.GetIntent(ctx, id)
		if err == nil {
			if attempt > 1 {
				rp.logger.WithFields(log.Fields{
					"intent_id": id,
					"attempt":   attempt,
				}).Info("GetIntent succeeded after retry")
			}
			return intent, nil
		}

		lastErr = err

		if !domain.IsProviderRetryable(err) {
			return domain.PaymentIntent{}, err
		}

		if attempt < rp.config.MaxAttempts {
			rp.logger.WithFields(log.Fields{
				"intent_id": id,
				"attempt":   attempt,
				"delay":     delay,
				"error":     err,
			}).Warn("GetIntent failed, retrying")

			select {
			case <-ctx.Done():
				return domain.PaymentIntent{}, ctx.Err()
			case <-time.After(delay):
			}

			// Экспоненциальная задержка с ограничением
			delay = time.Duration(float64(delay) * rp.config.BackoffFactor)
			if delay > rp.config.MaxDelay {
				delay = rp.config.MaxDelay
			}
		}
	}

	rp.logger.WithFields(log.Fields{
		"intent_id":    id,
		"max_attempts": rp.config.MaxAttempts,
		"error":        lastErr,
	}).Error("GetIntent failed after all retry attempts")

	return domain.PaymentIntent{}, lastErr
}

var _ domain.PaymentProvider = (*RetryableProvider)(nil)
