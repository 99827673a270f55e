package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/order"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/service/reconcile"
)

// RouterConfig собирает зависимости клиентского API и webhook.
type RouterConfig struct {
	Orders        *order.Service
	Payments      *payment.Adapter
	Reconcile     *reconcile.Service
	Idempotency   domain.IdempotencyRepository
	WebhookSecret string
	Logger        *log.Entry
}

// NewRouter строит chi-роутер со всеми маршрутами сервиса.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	handler := &Handler{
		orders:    cfg.Orders,
		payments:  cfg.Payments,
		reconcile: cfg.Reconcile,
		logger:    logger,
	}
	webhook := NewWebhookHandler(cfg.Reconcile, cfg.WebhookSecret, logger.WithField("component", "webhook"))
	idem := NewIdempotencyMiddleware(cfg.Idempotency, logger.WithField("component", "idempotency"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(idem.Wrap).Post("/", handler.CreateOrder)
			r.Get("/", handler.ListOrders)
			r.Post("/confirm", handler.ConfirmOrder)
			r.Get("/{orderID}", handler.GetOrder)
			r.Get("/{orderID}/timeline", handler.GetTimeline)
			r.Post("/{orderID}/authorize", handler.AuthorizeOrder)
		})
	})

	r.Post("/webhooks/payment", webhook.Handle)

	return r
}
