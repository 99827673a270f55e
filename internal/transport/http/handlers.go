package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/order"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/service/reconcile"
)

// Идентификация пользователя приходит от внешнего шлюза в заголовке.
const userIDHeader = "X-User-ID"

const defaultListLimit = 50

// Handler обслуживает клиентский HTTP API: оформление заказа, авторизацию
// оплаты и клиентское подтверждение.
type Handler struct {
	orders    *order.Service
	payments  *payment.Adapter
	reconcile *reconcile.Service
	logger    *log.Entry
}

// DTO клиентского API.

type shippingAddressDTO struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type contactInfoDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type createOrderRequest struct {
	Shipping      shippingAddressDTO `json:"shipping"`
	Contact       contactInfoDTO     `json:"contact"`
	PaymentMethod string             `json:"payment_method"`
}

type orderItemDTO struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

type paymentInfoDTO struct {
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type orderResponse struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	Status           string             `json:"status"`
	Currency         string             `json:"currency"`
	Items            []orderItemDTO     `json:"items"`
	Shipping         shippingAddressDTO `json:"shipping"`
	Contact          contactInfoDTO     `json:"contact"`
	SubtotalMinor    int64              `json:"subtotal_minor"`
	ShippingFeeMinor int64              `json:"shipping_fee_minor"`
	TaxMinor         int64              `json:"tax_minor"`
	TotalMinor       int64              `json:"total_minor"`
	Payment          paymentInfoDTO     `json:"payment"`
	IntentID         string             `json:"intent_id,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

type authorizeRequest struct {
	AmountMinor int64 `json:"amount_minor"`
}

type authorizeResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
}

type confirmRequest struct {
	IntentID string `json:"intent_id"`
	OrderID  string `json:"order_id"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDTO{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}
	return orderResponse{
		ID:       o.ID,
		UserID:   o.UserID,
		Status:   string(o.Status),
		Currency: o.Currency,
		Items:    items,
		Shipping: shippingAddressDTO{
			Line1:      o.Shipping.Line1,
			Line2:      o.Shipping.Line2,
			City:       o.Shipping.City,
			PostalCode: o.Shipping.PostalCode,
			Country:    o.Shipping.Country,
		},
		Contact: contactInfoDTO{
			Name:  o.Contact.Name,
			Email: o.Contact.Email,
			Phone: o.Contact.Phone,
		},
		SubtotalMinor:    o.SubtotalMinor,
		ShippingFeeMinor: o.ShippingFeeMinor,
		TaxMinor:         o.TaxMinor,
		TotalMinor:       o.TotalMinor,
		Payment: paymentInfoDTO{
			Method:        string(o.Payment.Method),
			Status:        string(o.Payment.Status),
			TransactionID: o.Payment.TransactionID,
			PaidAt:        o.Payment.PaidAt,
		},
		IntentID:  o.IntentID,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// CreateOrder обрабатывает POST /api/v1/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	created, err := h.orders.Create(r.Context(), order.CreateInput{
		UserID: userID,
		Shipping: domain.ShippingAddress{
			Line1:      req.Shipping.Line1,
			Line2:      req.Shipping.Line2,
			City:       req.Shipping.City,
			PostalCode: req.Shipping.PostalCode,
			Country:    req.Shipping.Country,
		},
		Contact: domain.ContactInfo{
			Name:  req.Contact.Name,
			Email: req.Contact.Email,
			Phone: req.Contact.Phone,
		},
		Method: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrderResponse(created))
}

// GetOrder обрабатывает GET /api/v1/orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	orderID := chi.URLParam(r, "orderID")

	got, err := h.orders.Get(orderID, userID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(got))
}

// ListOrders обрабатывает GET /api/v1/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	orders, err := h.orders.ListByUser(userID, limit)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetTimeline обрабатывает GET /api/v1/orders/{orderID}/timeline.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	orderID := chi.URLParam(r, "orderID")

	events, err := h.orders.Timeline(orderID, userID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	resp := make([]timelineEventDTO, 0, len(events))
	for _, ev := range events {
		resp = append(resp, timelineEventDTO{
			Type:     ev.Type,
			Reason:   ev.Reason,
			Occurred: ev.Occurred,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// AuthorizeOrder обрабатывает POST /api/v1/orders/{orderID}/authorize.
func (h *Handler) AuthorizeOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	orderID := chi.URLParam(r, "orderID")

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	intent, err := h.payments.Authorize(r.Context(), orderID, userID, req.AmountMinor)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, authorizeResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
		AmountMinor:  intent.AmountMinor,
		Currency:     intent.Currency,
	})
}

// ConfirmOrder обрабатывает POST /api/v1/orders/confirm — клиентское
// подтверждение оплаты. Статус проверяется у провайдера, не со слов клиента.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	got, err := h.reconcile.Confirm(r.Context(), req.IntentID, req.OrderID, userID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(got))
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	status, code := mapDomainError(err)
	if status >= 500 {
		h.logger.WithError(err).Error("request failed")
	}
	respondError(w, status, code, err.Error())
}

// mapDomainError переводит доменные ошибки в HTTP-статусы. Для провайдера
// webhook важно различие: 5xx означает «повтори доставку», 4xx — «не повторяй».
func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrIntentNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrAmountMismatch):
		return http.StatusUnprocessableEntity, "unprocessable"
	case errors.Is(err, domain.ErrOwnershipMismatch):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired, "payment_not_completed"
	case errors.Is(err, domain.ErrReconciliationConflict),
		errors.Is(err, domain.ErrTransactionIDTaken),
		errors.Is(err, domain.ErrOrderVersionConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity, "idempotency_mismatch"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway, "provider_unavailable"
	case errors.Is(err, domain.ErrReconcileRetryExhausted):
		return http.StatusServiceUnavailable, "retry_exhausted"
	case errors.Is(err, domain.ErrUserIDRequired),
		errors.Is(err, domain.ErrOrderIDRequired),
		errors.Is(err, domain.ErrIntentIDRequired),
		errors.Is(err, domain.ErrCurrencyInvalid),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrItemPriceInvalid),
		errors.Is(err, domain.ErrPaymentMethodInvalid),
		errors.Is(err, domain.ErrShippingAddressIncomplete),
		errors.Is(err, domain.ErrContactInfoIncomplete):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{
		Error: message,
		Code:  code,
	})
}
