package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = errors.New("user_id is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего идентификатора платёжного intent.
	ErrIntentIDRequired = errors.New("intent_id is required")
	// Ошибка некорректного кода валюты (ожидается трёхбуквенный код).
	ErrCurrencyInvalid = errors.New("currency must be a three-letter code")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия итоговой суммы заказа слагаемым.
	ErrTotalMismatch = errors.New("order total does not match subtotal + shipping + tax")
	// Ошибка отрицательной суммы.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка неподдерживаемого способа оплаты.
	ErrPaymentMethodInvalid = errors.New("unsupported payment method")
	// Ошибка неполного адреса доставки.
	ErrShippingAddressIncomplete = errors.New("shipping address is incomplete")
	// Ошибка неполных контактных данных.
	ErrContactInfoIncomplete = errors.New("contact info is incomplete")

	// ErrEmptyCart возвращается при попытке снять снапшот с пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartNotFound возвращается, если у пользователя нет корзины.
	ErrCartNotFound = errors.New("cart not found")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrTransactionIDTaken — транзакция провайдера уже привязана к другому заказу.
	ErrTransactionIDTaken = errors.New("provider transaction id already recorded for another order")

	// ErrAmountMismatch — сумма из запроса клиента не совпала с пересчитанной суммой заказа.
	ErrAmountMismatch = errors.New("client amount does not match order total")
	// ErrOwnershipMismatch — intent принадлежит другому пользователю или заказу.
	ErrOwnershipMismatch = errors.New("payment intent ownership mismatch")
	// ErrPaymentNotCompleted — провайдер ещё не подтвердил оплату.
	ErrPaymentNotCompleted = errors.New("payment is not completed by provider")
	// ErrReconciliationConflict — заказ уже завершён другой транзакцией; требуется ручной разбор.
	ErrReconciliationConflict = errors.New("reconciliation conflict: order completed with different transaction")
	// ErrReconcileRetryExhausted — не удалось применить переход за отведённое число попыток.
	ErrReconcileRetryExhausted = errors.New("reconciliation retries exhausted")

	// ErrIntentNotFound — провайдер не знает такой intent.
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrProviderUnavailable — временная ошибка провайдера, можно повторить попытку.
	ErrProviderUnavailable = errors.New("payment provider temporarily unavailable")

	// ErrSignatureInvalid — подпись webhook не прошла проверку.
	ErrSignatureInvalid = errors.New("webhook signature is invalid")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — тот же ключ пришёл с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsProviderRetryable сообщает, имеет ли смысл повторить обращение к провайдеру.
func IsProviderRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
