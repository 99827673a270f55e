package domain

import (
	"context"
	"time"
)

// CartService описывает взаимодействие с сервисом корзин (внешний коллаборатор).
type CartService interface {
	// GetCart возвращает живую корзину пользователя или ErrCartNotFound.
	GetCart(ctx context.Context, userID string) (Cart, error)
	// ClearCart очищает живую корзину после завершения оплаты.
	ClearCart(ctx context.Context, userID string) error
}

// PaymentProvider описывает обращения к внешнему платёжному провайдеру.
type PaymentProvider interface {
	// CreateIntent создаёт новый intent. Не идемпотентен — вызывающий обязан
	// сначала проверить, нет ли уже intent для заказа.
	CreateIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntent, error)
	// GetIntent возвращает актуальное состояние intent; побочных эффектов нет.
	GetIntent(ctx context.Context, id string) (PaymentIntent, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
