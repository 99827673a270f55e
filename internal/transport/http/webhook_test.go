package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func signedHeaders(body []byte) map[string]string {
	ts := time.Now().Unix()
	return map[string]string{
		signatureHeader: fmt.Sprintf("t=%d,v1=%s", ts, computeSignature([]byte(testWebhookSecret), ts, body)),
	}
}

func intentSucceededEvent(intentID, orderID, userID string) []byte {
	event := map[string]interface{}{
		"type": "payment_intent.succeeded",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":     intentID,
				"status": "succeeded",
				"metadata": map[string]string{
					domain.MetadataOrderID: orderID,
					domain.MetadataUserID:  userID,
				},
			},
		},
	}
	body, _ := json.Marshal(event)
	return body
}

// authorizeForWebhook создаёт заказ и intent, возвращая их идентификаторы.
func authorizeForWebhook(t *testing.T, env *testEnv) (orderID, intentID string) {
	t.Helper()

	env.seedCart("user-1")
	created := env.createOrder(t, "user-1")

	body, _ := json.Marshal(authorizeRequest{AmountMinor: 2500})
	rec := env.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/authorize", body, map[string]string{userIDHeader: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var auth authorizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	return created.ID, auth.IntentID
}

func TestWebhook_CompletesPayment(t *testing.T) {
	env := newTestEnv(t)
	orderID, intentID := authorizeForWebhook(t, env)

	body := intentSucceededEvent(intentID, orderID, "user-1")
	rec := env.do(t, http.MethodPost, "/webhooks/payment", body, signedHeaders(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := env.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Payment.Status)
	assert.Equal(t, domain.OrderStatusProcessing, stored.Status)
	assert.Equal(t, intentID, stored.Payment.TransactionID)
}

func TestWebhook_DuplicateDelivery(t *testing.T) {
	env := newTestEnv(t)
	orderID, intentID := authorizeForWebhook(t, env)

	body := intentSucceededEvent(intentID, orderID, "user-1")

	rec := env.do(t, http.MethodPost, "/webhooks/payment", body, signedHeaders(body))
	require.Equal(t, http.StatusOK, rec.Code)

	first, err := env.orders.Get(orderID)
	require.NoError(t, err)

	// Повторная доставка того же события — no-op.
	rec = env.do(t, http.MethodPost, "/webhooks/payment", body, signedHeaders(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	second, err := env.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version, "duplicate delivery must not change the order")
	assert.Equal(t, first.Payment.TransactionID, second.Payment.TransactionID)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	orderID, intentID := authorizeForWebhook(t, env)

	body := intentSucceededEvent(intentID, orderID, "user-1")

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "garbage header", header: "nonsense"},
		{name: "wrong secret", header: fmt.Sprintf("t=%d,v1=%s", time.Now().Unix(), computeSignature([]byte("wrong"), time.Now().Unix(), body))},
		{
			name: "stale timestamp",
			header: fmt.Sprintf("t=%d,v1=%s",
				time.Now().Add(-time.Hour).Unix(),
				computeSignature([]byte(testWebhookSecret), time.Now().Add(-time.Hour).Unix(), body)),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers[signatureHeader] = tc.header
			}
			rec := env.do(t, http.MethodPost, "/webhooks/payment", body, headers)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// Ни одна непроверенная доставка не должна изменить заказ.
	stored, err := env.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.Payment.Status)
	assert.Empty(t, stored.Payment.TransactionID)
}

func TestWebhook_TamperedBody(t *testing.T) {
	env := newTestEnv(t)
	orderID, intentID := authorizeForWebhook(t, env)

	body := intentSucceededEvent(intentID, orderID, "user-1")
	headers := signedHeaders(body)

	// Тело подменено после подписания.
	tampered := intentSucceededEvent(intentID, orderID, "user-2")
	rec := env.do(t, http.MethodPost, "/webhooks/payment", tampered, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := env.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.Payment.Status)
}

func TestWebhook_IgnoresOtherEventTypes(t *testing.T) {
	env := newTestEnv(t)
	orderID, intentID := authorizeForWebhook(t, env)

	event := map[string]interface{}{
		"type": "payment_intent.created",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id": intentID,
				"metadata": map[string]string{
					domain.MetadataOrderID: orderID,
				},
			},
		},
	}
	body, _ := json.Marshal(event)

	rec := env.do(t, http.MethodPost, "/webhooks/payment", body, signedHeaders(body))
	assert.Equal(t, http.StatusOK, rec.Code, "unknown event types are acknowledged")

	stored, err := env.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.Payment.Status)
}

func TestWebhook_ConflictIsFinal(t *testing.T) {
	env := newTestEnv(t)
	orderID, intentID := authorizeForWebhook(t, env)

	body := intentSucceededEvent(intentID, orderID, "user-1")
	rec := env.do(t, http.MethodPost, "/webhooks/payment", body, signedHeaders(body))
	require.Equal(t, http.StatusOK, rec.Code)

	// Событие с другой транзакцией для уже завершённого заказа.
	conflicting := intentSucceededEvent("pi_other_txn", orderID, "user-1")
	rec = env.do(t, http.MethodPost, "/webhooks/payment", conflicting, signedHeaders(conflicting))
	assert.Equal(t, http.StatusConflict, rec.Code, "conflict is a 4xx: provider must not redeliver")

	stored, err := env.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, intentID, stored.Payment.TransactionID, "stored record must stay untouched")
}

func TestWebhook_ConfirmAndWebhookRace(t *testing.T) {
	env := newTestEnv(t)
	orderID, intentID := authorizeForWebhook(t, env)
	env.provider.SetStatus(intentID, domain.IntentStatusSucceeded)

	confirmBody, _ := json.Marshal(confirmRequest{IntentID: intentID, OrderID: orderID})
	webhookBody := intentSucceededEvent(intentID, orderID, "user-1")

	done := make(chan int, 2)
	go func() {
		rec := env.do(t, http.MethodPost, "/api/v1/orders/confirm", confirmBody, map[string]string{userIDHeader: "user-1"})
		done <- rec.Code
	}()
	go func() {
		rec := env.do(t, http.MethodPost, "/webhooks/payment", webhookBody, signedHeaders(webhookBody))
		done <- rec.Code
	}()

	for i := 0; i < 2; i++ {
		code := <-done
		assert.Equal(t, http.StatusOK, code, "both completion signals must succeed")
	}

	stored, err := env.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Payment.Status)
	assert.Equal(t, domain.OrderStatusProcessing, stored.Status)
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("whsec_abc")
	body := []byte(`{"type":"payment_intent.succeeded"}`)
	now := time.Unix(1735689600, 0)

	valid := fmt.Sprintf("t=%d,v1=%s", now.Unix(), computeSignature(secret, now.Unix(), body))
	if err := verifySignature(secret, valid, body, defaultSignatureTolerance, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	// Несколько подписей в заголовке: достаточно одной верной.
	multi := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now.Unix(), computeSignature(secret, now.Unix(), body))
	if err := verifySignature(secret, multi, body, defaultSignatureTolerance, now); err != nil {
		t.Fatalf("multi-signature header rejected: %v", err)
	}

	bad := []string{
		"",
		"t=notanumber,v1=abc",
		fmt.Sprintf("v1=%s", computeSignature(secret, now.Unix(), body)),
		fmt.Sprintf("t=%d", now.Unix()),
		fmt.Sprintf("t=%d,v1=0000", now.Unix()),
	}
	for _, header := range bad {
		if err := verifySignature(secret, header, body, defaultSignatureTolerance, now); err == nil {
			t.Errorf("header %q must be rejected", header)
		}
	}

	// Метка времени за пределами допуска.
	old := now.Add(-defaultSignatureTolerance - time.Minute)
	stale := fmt.Sprintf("t=%d,v1=%s", old.Unix(), computeSignature(secret, old.Unix(), body))
	if err := verifySignature(secret, stale, body, defaultSignatureTolerance, now); err == nil {
		t.Error("stale timestamp must be rejected")
	}
}
