package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// CreateInput — параметры оформления заказа из корзины.
type CreateInput struct {
	UserID   string
	Shipping domain.ShippingAddress
	Contact  domain.ContactInfo
	Method   domain.PaymentMethod
}

// Service оформляет заказы из живой корзины и отдаёт их наружу.
type Service struct {
	orders        domain.OrderRepository
	carts         domain.CartService
	timeline      domain.TimelineRepository
	pricing       PricingPolicy
	logger        *log.Entry
	kafkaProducer *kafka.Producer // опциональный producer событий
}

// NewService создаёт рабочий экземпляр сервиса заказов.
func NewService(
	orders domain.OrderRepository,
	carts domain.CartService,
	timeline domain.TimelineRepository,
	pricing PricingPolicy,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	if pricing == nil {
		pricing = NewZeroPricing()
	}
	return &Service{
		orders:   orders,
		carts:    carts,
		timeline: timeline,
		pricing:  pricing,
		logger:   logger,
	}
}

// NewServiceWithKafka создаёт сервис, публикующий события заказов в Kafka.
func NewServiceWithKafka(
	orders domain.OrderRepository,
	carts domain.CartService,
	timeline domain.TimelineRepository,
	pricing PricingPolicy,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) *Service {
	svc := NewService(orders, carts, timeline, pricing, logger)
	svc.kafkaProducer = kafkaProducer
	return svc
}

// Create оформляет заказ: снимает снапшот корзины, считает суммы и сохраняет
// агрегат целиком. Живая корзина при этом не очищается — она освобождается
// только после подтверждения оплаты.
func (s *Service) Create(ctx context.Context, input CreateInput) (domain.Order, error) {
	if input.UserID == "" {
		return domain.Order{}, domain.ErrUserIDRequired
	}
	if !input.Method.Valid() {
		return domain.Order{}, domain.ErrPaymentMethodInvalid
	}
	if err := input.Shipping.Validate(); err != nil {
		return domain.Order{}, err
	}
	if err := input.Contact.Validate(); err != nil {
		return domain.Order{}, err
	}

	cart, err := s.carts.GetCart(ctx, input.UserID)
	if err != nil {
		return domain.Order{}, err
	}

	snapshot, err := domain.Snapshot(cart)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.ValidCurrency(snapshot.Currency) {
		return domain.Order{}, domain.ErrCurrencyInvalid
	}

	now := time.Now().UTC()
	items := make([]domain.OrderItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		items = append(items, domain.OrderItem{
			ID:             uuid.NewString(),
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			CreatedAt:      now,
		})
	}

	shippingFee := s.pricing.ShippingFeeMinor(snapshot)
	tax := s.pricing.TaxMinor(snapshot, shippingFee)

	order := domain.Order{
		ID:               uuid.NewString(),
		UserID:           input.UserID,
		Status:           domain.OrderStatusPending,
		Currency:         snapshot.Currency,
		Items:            items,
		Shipping:         input.Shipping,
		Contact:          input.Contact,
		SubtotalMinor:    snapshot.TotalMinor,
		ShippingFeeMinor: shippingFee,
		TaxMinor:         tax,
		TotalMinor:       snapshot.TotalMinor + shippingFee + tax,
		Payment: domain.PaymentInfo{
			Method: input.Method,
			Status: domain.PaymentStatusPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	// Агрегат сохраняется целиком либо не сохраняется вовсе.
	if err := s.orders.Create(order); err != nil {
		return domain.Order{}, err
	}

	s.appendTimeline(order.ID, domain.TimelineEventOrderCreated)
	s.publishEvent(kafka.EventTypeOrderCreated, order, map[string]interface{}{
		"total_minor": order.TotalMinor,
		"currency":    order.Currency,
		"items_count": len(order.Items),
	})

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_minor": order.TotalMinor,
	}).Info("order created")

	return order, nil
}

// Get возвращает заказ пользователя. Чужой заказ неотличим от несуществующего.
func (s *Service) Get(orderID, userID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if userID == "" {
		return domain.Order{}, domain.ErrUserIDRequired
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListByUser возвращает заказы пользователя, последние первыми.
func (s *Service) ListByUser(userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}
	return s.orders.ListByUser(userID, limit)
}

// Timeline возвращает историю событий заказа пользователя.
func (s *Service) Timeline(orderID, userID string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(orderID, userID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(orderID)
}

func (s *Service) appendTimeline(orderID, eventType string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
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
		// Kafka опциональна, ошибка публикации не прерывает оформление.
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   order.ID,
		}).Warn("failed to publish order event to kafka")
	}
}
