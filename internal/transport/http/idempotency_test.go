package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestIdempotentCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedCart("user-1")

	headers := map[string]string{
		userIDHeader:         "user-1",
		idempotencyKeyHeader: "idem-key-1",
	}

	first := env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	var firstResp orderResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	// Повтор с тем же ключом возвращает сохранённый ответ, заказ один.
	second := env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))

	var secondResp orderResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.Equal(t, firstResp.ID, secondResp.ID)

	list, err := env.orders.ListByUser("user-1", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1, "replay must not create a second order")
}

func TestIdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	env := newTestEnv(t)
	env.seedCart("user-1")

	headers := map[string]string{
		userIDHeader:         "user-1",
		idempotencyKeyHeader: "idem-key-1",
	}

	first := env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	other, _ := json.Marshal(createOrderRequest{
		Shipping: shippingAddressDTO{
			Line1:      "2 Other st",
			City:       "Shelbyville",
			PostalCode: "54321",
			Country:    "US",
		},
		Contact: contactInfoDTO{
			Name:  "Jane Doe",
			Email: "jane@example.com",
		},
		PaymentMethod: "paypal",
	})

	second := env.do(t, http.MethodPost, "/api/v1/orders", other, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
}

func TestIdempotencyKeyScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	env.seedCart("user-1")
	env.seedCart("user-2")

	rec := env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), map[string]string{
		userIDHeader:         "user-1",
		idempotencyKeyHeader: "shared-key",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Тот же ключ от другого пользователя — другой хеш запроса.
	rec = env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), map[string]string{
		userIDHeader:         "user-2",
		idempotencyKeyHeader: "shared-key",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNoIdempotencyKeyPassesThrough(t *testing.T) {
	env := newTestEnv(t)
	env.seedCart("user-1")

	first := env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), map[string]string{userIDHeader: "user-1"})
	require.Equal(t, http.StatusCreated, first.Code)

	env.seedCart("user-1")
	second := env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), map[string]string{userIDHeader: "user-1"})
	require.Equal(t, http.StatusCreated, second.Code)

	list, err := env.orders.ListByUser("user-1", 0)
	require.NoError(t, err)
	assert.Len(t, list, 2, "without a key every request creates an order")
}

func TestIdempotencyStoresFailures(t *testing.T) {
	env := newTestEnv(t)
	// Корзина пуста: запрос завершится 422 и будет сохранён как failed.
	env.carts.SetCart(domain.Cart{UserID: "user-1", Currency: "USD"})

	headers := map[string]string{
		userIDHeader:         "user-1",
		idempotencyKeyHeader: "idem-key-fail",
	}

	first := env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), headers)
	require.Equal(t, http.StatusUnprocessableEntity, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(), headers)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
}
