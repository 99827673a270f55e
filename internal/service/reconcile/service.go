package reconcile

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	// Ограничение на число повторов условной записи при конфликте версий.
	applyMaxRetries = 5
	applyBaseDelay  = 10 * time.Millisecond
)

// Service сводит два независимых сигнала о завершении оплаты — подтверждение
// клиента и webhook провайдера — к ровно одному переходу заказа.
type Service struct {
	orders        domain.OrderRepository
	provider      domain.PaymentProvider
	carts         domain.CartService
	timeline      domain.TimelineRepository
	logger        *log.Entry
	metrics       *metrics.ReconcileMetrics
	kafkaProducer *kafka.Producer // опциональный producer событий
}

// NewService создаёт рабочий экземпляр сервиса reconciliation.
func NewService(
	orders domain.OrderRepository,
	provider domain.PaymentProvider,
	carts domain.CartService,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "reconcile")
	}
	return &Service{
		orders:   orders,
		provider: provider,
		carts:    carts,
		timeline: timeline,
		logger:   logger,
		metrics:  metrics.NewReconcileMetrics(),
	}
}

// NewServiceWithKafka создаёт сервис с Kafka producer для событий оплаты.
func NewServiceWithKafka(
	orders domain.OrderRepository,
	provider domain.PaymentProvider,
	carts domain.CartService,
	timeline domain.TimelineRepository,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) *Service {
	svc := NewService(orders, provider, carts, timeline, logger)
	svc.kafkaProducer = kafkaProducer
	return svc
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(
	orders domain.OrderRepository,
	provider domain.PaymentProvider,
	carts domain.CartService,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	svc := NewService(orders, provider, carts, timeline, logger)
	svc.metrics = nil
	return svc
}

// Confirm обрабатывает клиентское подтверждение оплаты. Статус intent
// перечитывается у провайдера: утверждению клиента система не верит.
func (s *Service) Confirm(ctx context.Context, intentID, orderID, userID string) (domain.Order, error) {
	if intentID == "" {
		return domain.Order{}, domain.ErrIntentIDRequired
	}
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if userID == "" {
		return domain.Order{}, domain.ErrUserIDRequired
	}

	intent, err := s.provider.GetIntent(ctx, intentID)
	if err != nil {
		return domain.Order{}, err
	}

	if intent.Metadata[domain.MetadataUserID] != userID {
		s.logger.WithFields(log.Fields{
			"intent_id": intentID,
			"user_id":   userID,
		}).Warn("intent owner mismatch on confirm")
		return domain.Order{}, domain.ErrOwnershipMismatch
	}
	if intent.Metadata[domain.MetadataOrderID] != orderID {
		s.logger.WithFields(log.Fields{
			"intent_id": intentID,
			"order_id":  orderID,
		}).Warn("intent order mismatch on confirm")
		return domain.Order{}, domain.ErrOwnershipMismatch
	}

	if intent.Status != domain.IntentStatusSucceeded {
		return domain.Order{}, domain.ErrPaymentNotCompleted
	}

	return s.ApplySucceeded(ctx, orderID, intent.ID)
}

// ApplySucceeded — единственный переход завершения оплаты. Сюда сходятся оба
// сигнала: повтор с тем же txnID поглощается как no-op, завершение другой
// транзакцией фиксируется как конфликт без изменения записи.
func (s *Service) ApplySucceeded(ctx context.Context, orderID, txnID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if txnID == "" {
		return domain.Order{}, domain.ErrIntentIDRequired
	}

	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordReconcileStarted()
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordReconcileDuration(time.Since(start))
		}
	}()

	for attempt := 0; attempt < applyMaxRetries; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordReconcileFailed()
			}
			return domain.Order{}, err
		}

		if order.Payment.Status == domain.PaymentStatusCompleted {
			if order.Payment.TransactionID == txnID {
				// Дубликат сигнала: переход уже применён этой же транзакцией.
				if s.metrics != nil {
					s.metrics.RecordReconcileReplayed()
				}
				s.appendTimeline(order.ID, domain.TimelineEventReconcileReplay, "duplicate completion signal")
				s.logger.WithFields(log.Fields{
					"order_id": orderID,
					"txn_id":   txnID,
				}).Info("duplicate completion signal absorbed")
				return order, nil
			}
			return domain.Order{}, s.conflict(order, txnID, "order already completed with different transaction")
		}
		if order.Payment.Status.Terminal() {
			return domain.Order{}, s.conflict(order, txnID, "order payment already in terminal status "+string(order.Payment.Status))
		}

		now := time.Now().UTC()
		order.Payment.Status = domain.PaymentStatusCompleted
		order.Payment.TransactionID = txnID
		order.Payment.PaidAt = &now
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusProcessing
		}
		order.UpdatedAt = now

		err = s.orders.Save(order)
		if err == nil {
			order.Version++
			s.finishApplied(ctx, order, txnID)
			return order, nil
		}

		switch {
		case domain.IsVersionConflict(err):
			// Параллельный сигнал успел первым. Перечитываем и решаем заново.
			if s.metrics != nil {
				s.metrics.RecordCASRetry()
			}
			select {
			case <-ctx.Done():
				if s.metrics != nil {
					s.metrics.RecordReconcileFailed()
				}
				return domain.Order{}, ctx.Err()
			case <-time.After(applyBaseDelay * time.Duration(1<<uint(attempt))):
			}
		case errors.Is(err, domain.ErrTransactionIDTaken):
			return domain.Order{}, s.conflict(order, txnID, "transaction already recorded for another order")
		default:
			if s.metrics != nil {
				s.metrics.RecordReconcileFailed()
			}
			s.logger.WithError(err).WithField("order_id", orderID).Error("failed to persist completion")
			return domain.Order{}, err
		}
	}

	if s.metrics != nil {
		s.metrics.RecordReconcileFailed()
	}
	return domain.Order{}, domain.ErrReconcileRetryExhausted
}

func (s *Service) finishApplied(ctx context.Context, order domain.Order, txnID string) {
	if s.metrics != nil {
		s.metrics.RecordReconcileCompleted()
	}

	s.appendTimeline(order.ID, domain.TimelineEventPaymentCompleted, "")
	s.publishEvent(kafka.EventTypePaymentCompleted, order, map[string]interface{}{
		"txn_id":      txnID,
		"total_minor": order.TotalMinor,
	})

	// Корзина очищается только после подтверждённой оплаты, best-effort.
	if s.carts != nil {
		if err := s.carts.ClearCart(ctx, order.UserID); err != nil {
			s.logger.WithError(err).WithField("user_id", order.UserID).Warn("clear cart after payment failed")
		}
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"txn_id":   txnID,
		"status":   order.Status,
	}).Info("payment completed, order moved to processing")
}

// conflict фиксирует расхождение сигналов: запись заказа не меняется,
// событие уходит на ручной разбор.
func (s *Service) conflict(order domain.Order, txnID, reason string) error {
	if s.metrics != nil {
		s.metrics.RecordReconcileConflict()
	}

	s.appendTimeline(order.ID, domain.TimelineEventReconcileConflict, reason)
	s.publishEvent(kafka.EventTypeReconcileConflict, order, map[string]interface{}{
		"txn_id":       txnID,
		"recorded_txn": order.Payment.TransactionID,
		"reason":       reason,
	})

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"txn_id":       txnID,
		"recorded_txn": order.Payment.TransactionID,
		"reason":       reason,
	}).Error("reconciliation conflict, manual review required")

	return domain.ErrReconciliationConflict
}

func (s *Service) appendTimeline(orderID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	}
}

func (s *Service) publishEvent(eventType kafka.EventType, order domain.Order, metadata map[string]interface{}) {
	if s.kafkaProducer == nil {
		return
	}

	event := kafka.NewOrderEvent(eventType, order.ID, order.UserID, string(order.Status), metadata)
	if err := s.kafkaProducer.PublishOrderEvent(event); err != nil {
		// Kafka опциональна, ошибка публикации не прерывает сверку.
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   order.ID,
		}).Warn("failed to publish reconcile event to kafka")
	}
}
