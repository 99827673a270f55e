package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/reconcile"
)

const maxWebhookBody = 1 << 20

// Единственный тип события, двигающий заказ. Остальные подтверждаются
// и игнорируются.
const eventTypeIntentSucceeded = "payment_intent.succeeded"

// WebhookHandler принимает события платёжного провайдера. Проверка подписи
// выполняется до разбора тела; непроверенное событие не достигает сервиса.
type WebhookHandler struct {
	reconcile *reconcile.Service
	secret    []byte
	tolerance time.Duration
	logger    *log.Entry
	metrics   *metrics.ReconcileMetrics
	now       func() time.Time
}

// NewWebhookHandler создаёт обработчик webhook с данным секретом подписи.
func NewWebhookHandler(svc *reconcile.Service, secret string, logger *log.Entry) *WebhookHandler {
	if logger == nil {
		logger = log.New().WithField("component", "webhook")
	}
	return &WebhookHandler{
		reconcile: svc,
		secret:    []byte(secret),
		tolerance: defaultSignatureTolerance,
		logger:    logger,
		metrics:   metrics.NewReconcileMetrics(),
		now:       time.Now,
	}
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Status   string            `json:"status"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Handle обрабатывает POST /webhooks/payment.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return
	}

	if err := verifySignature(h.secret, r.Header.Get(signatureHeader), body, h.tolerance, h.now()); err != nil {
		if h.metrics != nil {
			h.metrics.RecordWebhookRejected()
		}
		h.logger.WithField("remote", r.RemoteAddr).Warn("webhook signature verification failed")
		// 400 говорит провайдеру не повторять доставку.
		respondError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordWebhookReceived()
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid event payload")
		return
	}

	if event.Type != eventTypeIntentSucceeded {
		if h.metrics != nil {
			h.metrics.RecordWebhookIgnored(event.Type)
		}
		h.logger.WithField("event_type", event.Type).Debug("webhook event ignored")
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	intentID := event.Data.Object.ID
	orderID := event.Data.Object.Metadata[domain.MetadataOrderID]
	if intentID == "" || orderID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "event missing intent or order id")
		return
	}

	if _, err := h.reconcile.ApplySucceeded(r.Context(), orderID, intentID); err != nil {
		status, code := mapDomainError(err)
		// Повторная доставка имеет смысл только при временном сбое: конфликт
		// и прочие 4xx окончательны, 5xx провайдер доставит ещё раз.
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Заказ может быть ещё не виден из-за гонки создания — пусть провайдер повторит.
			status, code = http.StatusInternalServerError, "order_not_visible"
		}
		if status >= 500 {
			h.logger.WithError(err).WithFields(log.Fields{
				"order_id":  orderID,
				"intent_id": intentID,
			}).Error("webhook processing failed")
		}
		respondError(w, status, code, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
