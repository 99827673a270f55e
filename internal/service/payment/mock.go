package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockProvider — конфигурируемая заглушка PaymentProvider для тестов.
type MockProvider struct {
	mu      sync.Mutex
	intents map[string]domain.PaymentIntent

	CreateErr    error
	GetErr       error
	FailGetTimes int // столько первых GetIntent вернут ErrProviderUnavailable

	CreateCalls int
	GetCalls    int
}

// NewMockProvider возвращает mock с успешным сценарием по умолчанию.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		intents: make(map[string]domain.PaymentIntent),
	}
}

// CreateIntent регистрирует новый intent в памяти и считает вызовы.
func (m *MockProvider) CreateIntent(_ context.Context, req domain.CreateIntentRequest) (domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return domain.PaymentIntent{}, m.CreateErr
	}

	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	id := "pi_" + uuid.NewString()
	intent := domain.PaymentIntent{
		ID:           id,
		Status:       domain.IntentStatusRequiresConfirmation,
		ClientSecret: id + "_secret",
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
		Metadata:     metadata,
	}
	m.intents[id] = intent
	return intent, nil
}

// GetIntent возвращает сохранённый intent, считает вызовы и при необходимости
// имитирует временные сбои провайдера.
func (m *MockProvider) GetIntent(_ context.Context, id string) (domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	if m.GetErr != nil {
		return domain.PaymentIntent{}, m.GetErr
	}
	if m.FailGetTimes > 0 {
		m.FailGetTimes--
		return domain.PaymentIntent{}, fmt.Errorf("%w: mock transient failure", domain.ErrProviderUnavailable)
	}

	intent, ok := m.intents[id]
	if !ok {
		return domain.PaymentIntent{}, domain.ErrIntentNotFound
	}
	return intent, nil
}

// SetStatus переводит intent в заданный статус (подготовка сценария теста).
func (m *MockProvider) SetStatus(id string, status domain.IntentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[id]
	if !ok {
		return
	}
	intent.Status = status
	m.intents[id] = intent
}

var _ domain.PaymentProvider = (*MockProvider)(nil)
