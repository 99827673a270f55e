package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated EventType = "order.created"

	// Payment события
	EventTypePaymentAuthorized EventType = "payment.authorized"
	EventTypePaymentCompleted  EventType = "payment.completed"

	// Reconcile события
	EventTypeReconcileConflict EventType = "reconcile.conflict"
)

// Topics для Kafka
const (
	TopicOrderEvents = "checkout.order.events"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	UserID    string                 `json:"user_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, userID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
