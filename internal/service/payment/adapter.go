package payment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// Число попыток записать IntentID при конфликте версий.
const attachIntentMaxRetries = 3

// Adapter связывает заказы с платёжным провайдером: авторизация оплаты
// создаёт intent и привязывает его к заказу.
type Adapter struct {
	orders        domain.OrderRepository
	provider      domain.PaymentProvider
	timeline      domain.TimelineRepository
	logger        *log.Entry
	kafkaProducer *kafka.Producer // опциональный producer событий
}

// NewAdapter создаёт рабочий экземпляр адаптера.
func NewAdapter(
	orders domain.OrderRepository,
	provider domain.PaymentProvider,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Adapter {
	if logger == nil {
		logger = log.New().WithField("component", "payment-adapter")
	}
	return &Adapter{
		orders:   orders,
		provider: provider,
		timeline: timeline,
		logger:   logger,
	}
}

// NewAdapterWithKafka создаёт адаптер, публикующий события авторизации в Kafka.
func NewAdapterWithKafka(
	orders domain.OrderRepository,
	provider domain.PaymentProvider,
	timeline domain.TimelineRepository,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) *Adapter {
	adapter := NewAdapter(orders, provider, timeline, logger)
	adapter.kafkaProducer = kafkaProducer
	return adapter
}

// Authorize запрашивает авторизацию оплаты заказа. Сумма пересчитывается из
// сохранённого заказа и сверяется с суммой клиента до любого обращения к
// провайдеру. Если intent уже привязан к заказу, возвращается его актуальное
// состояние вместо создания дубликата.
func (a *Adapter) Authorize(ctx context.Context, orderID, userID string, amountMinor int64) (domain.PaymentIntent, error) {
	if orderID == "" {
		return domain.PaymentIntent{}, domain.ErrOrderIDRequired
	}
	if userID == "" {
		return domain.PaymentIntent{}, domain.ErrUserIDRequired
	}

	order, err := a.orders.Get(orderID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if order.UserID != userID {
		return domain.PaymentIntent{}, domain.ErrOwnershipMismatch
	}

	// Сверка суммы — строго до обращения к провайдеру.
	if amountMinor != order.TotalMinor {
		a.logger.WithFields(log.Fields{
			"order_id":      orderID,
			"client_amount": amountMinor,
			"order_total":   order.TotalMinor,
		}).Warn("client amount mismatch")
		return domain.PaymentIntent{}, domain.ErrAmountMismatch
	}

	if order.IntentID != "" {
		return a.provider.GetIntent(ctx, order.IntentID)
	}

	intent, err := a.provider.CreateIntent(ctx, domain.CreateIntentRequest{
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		Metadata: map[string]string{
			domain.MetadataOrderID: order.ID,
			domain.MetadataUserID:  order.UserID,
		},
	})
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	attached, err := a.attachIntent(order, intent.ID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if attached.IntentID != intent.ID {
		// Параллельная авторизация успела привязать свой intent первой.
		a.logger.WithFields(log.Fields{
			"order_id":  orderID,
			"intent_id": attached.IntentID,
		}).Info("concurrent authorization won, reusing its intent")
		return a.provider.GetIntent(ctx, attached.IntentID)
	}

	a.appendTimeline(order.ID, domain.TimelineEventPaymentAuthorized)
	a.publishEvent(kafka.EventTypePaymentAuthorized, order, map[string]interface{}{
		"intent_id":    intent.ID,
		"amount_minor": intent.AmountMinor,
		"currency":     intent.Currency,
	})

	a.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"intent_id": intent.ID,
	}).Info("payment intent attached to order")

	return intent, nil
}

// attachIntent записывает IntentID на заказ условной записью, перечитывая
// заказ при конфликте версий. Возвращает заказ с фактически привязанным intent.
func (a *Adapter) attachIntent(order domain.Order, intentID string) (domain.Order, error) {
	for attempt := 0; attempt < attachIntentMaxRetries; attempt++ {
		order.IntentID = intentID
		order.UpdatedAt = time.Now().UTC()

		err := a.orders.Save(order)
		if err == nil {
			order.Version++
			return order, nil
		}
		if !domain.IsVersionConflict(err) {
			return domain.Order{}, err
		}

		fresh, loadErr := a.orders.Get(order.ID)
		if loadErr != nil {
			return domain.Order{}, loadErr
		}
		if fresh.IntentID != "" {
			return fresh, nil
		}
		order = fresh
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

func (a *Adapter) appendTimeline(orderID, eventType string) {
	if a.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Occurred: time.Now().UTC(),
	}
	if err := a.timeline.Append(event); err != nil {
		a.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	}
}

func (a *Adapter) publishEvent(eventType kafka.EventType, order domain.Order, metadata map[string]interface{}) {
	if a.kafkaProducer == nil {
		return
	}

	event := kafka.NewOrderEvent(eventType, order.ID, order.UserID, string(order.Status), metadata)
	if err := a.kafkaProducer.PublishOrderEvent(event); err != nil {
		// Kafka опциональна, ошибка публикации не прерывает авторизацию.
		a.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   order.ID,
		}).Warn("failed to publish payment event to kafka")
	}
}
