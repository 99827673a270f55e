package domain

import "time"

// IntentStatus — статус intent на стороне провайдера.
type IntentStatus string

const (
	// IntentStatusRequiresConfirmation — intent создан, ожидает подтверждения клиентом.
	IntentStatusRequiresConfirmation IntentStatus = "requires_confirmation"
	// IntentStatusProcessing — провайдер обрабатывает платёж.
	IntentStatusProcessing IntentStatus = "processing"
	// IntentStatusSucceeded — деньги авторизованы; единственный статус,
	// который reconciliation принимает как подтверждение оплаты.
	IntentStatusSucceeded IntentStatus = "succeeded"
	// IntentStatusCanceled — intent отменён на стороне провайдера.
	IntentStatusCanceled IntentStatus = "canceled"
)

// Ключи метаданных intent, по которым связываются заказ и владелец.
const (
	MetadataOrderID = "order_id"
	MetadataUserID  = "user_id"
)

// PaymentIntent — объект авторизации на стороне провайдера. Система хранит
// только его идентификатор и последний известный статус; источником истины
// о факте оплаты всегда остаётся сам провайдер.
type PaymentIntent struct {
	ID           string
	Status       IntentStatus
	ClientSecret string
	AmountMinor  int64
	Currency     string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// CreateIntentRequest — параметры создания intent у провайдера.
type CreateIntentRequest struct {
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}
