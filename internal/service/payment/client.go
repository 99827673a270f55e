package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// ClientConfig — настройки HTTP-клиента платёжного провайдера.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

// Client — HTTP-клиент провайдера. Реализует domain.PaymentProvider поверх
// REST-контракта /v1/payment_intents.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *log.Entry
}

// NewClient создаёт клиента провайдера.
func NewClient(cfg ClientConfig, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "payment-client")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type intentPayload struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	AmountMinor  int64             `json:"amount_minor"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
	CreatedAt    int64             `json:"created"`
}

type createIntentPayload struct {
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateIntent создаёт новый intent у провайдера. Вызов не идемпотентен —
// проверка существующего intent лежит на вызывающем.
func (c *Client) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (domain.PaymentIntent, error) {
	body, err := json.Marshal(createIntentPayload{
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("marshal create intent: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("build create intent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.doIntentRequest(httpReq)
}

// GetIntent возвращает актуальное состояние intent. Побочных эффектов нет.
func (c *Client) GetIntent(ctx context.Context, id string) (domain.PaymentIntent, error) {
	if id == "" {
		return domain.PaymentIntent{}, domain.ErrIntentIDRequired
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+id, nil)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("build get intent request: %w", err)
	}

	return c.doIntentRequest(httpReq)
}

func (c *Client) doIntentRequest(req *http.Request) (domain.PaymentIntent, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевые ошибки считаем временными.
		return domain.PaymentIntent{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusNotFound:
		return domain.PaymentIntent{}, domain.ErrIntentNotFound
	case resp.StatusCode >= 500:
		return domain.PaymentIntent{}, fmt.Errorf("%w: provider returned %d", domain.ErrProviderUnavailable, resp.StatusCode)
	default:
		c.logger.WithFields(log.Fields{
			"status": resp.StatusCode,
			"path":   req.URL.Path,
		}).Warn("unexpected provider response")
		return domain.PaymentIntent{}, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var payload intentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("decode intent response: %w", err)
	}

	return domain.PaymentIntent{
		ID:           payload.ID,
		Status:       domain.IntentStatus(payload.Status),
		ClientSecret: payload.ClientSecret,
		AmountMinor:  payload.AmountMinor,
		Currency:     payload.Currency,
		Metadata:     payload.Metadata,
		CreatedAt:    time.Unix(payload.CreatedAt, 0).UTC(),
	}, nil
}

var _ domain.PaymentProvider = (*Client)(nil)
