package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
	"github.com/vladislavdragonenkov/checkout/internal/service/order"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/service/reconcile"
	transporthttp "github.com/vladislavdragonenkov/checkout/internal/transport/http"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает зависимости и держит оба HTTP-сервера (API и ops) до отмены
// контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.Info(version.String())

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	var (
		orderSvc     *order.Service
		adapter      *payment.Adapter
		reconcileSvc *reconcile.Service
	)
	if kafkaProducer != nil {
		orderSvc = order.NewServiceWithKafka(deps.Orders, deps.Carts, deps.Timeline, nil, kafkaProducer, logger.WithField("component", "order-service"))
		adapter = payment.NewAdapterWithKafka(deps.Orders, deps.Provider, deps.Timeline, kafkaProducer, logger.WithField("component", "payment-adapter"))
		reconcileSvc = reconcile.NewServiceWithKafka(deps.Orders, deps.Provider, deps.Carts, deps.Timeline, kafkaProducer, logger.WithField("component", "reconcile"))
	} else {
		orderSvc = order.NewService(deps.Orders, deps.Carts, deps.Timeline, nil, logger.WithField("component", "order-service"))
		adapter = payment.NewAdapter(deps.Orders, deps.Provider, deps.Timeline, logger.WithField("component", "payment-adapter"))
		reconcileSvc = reconcile.NewService(deps.Orders, deps.Provider, deps.Carts, deps.Timeline, logger.WithField("component", "reconcile"))
	}

	router := transporthttp.NewRouter(transporthttp.RouterConfig{
		Orders:        orderSvc,
		Payments:      adapter,
		Reconcile:     reconcileSvc,
		Idempotency:   deps.Idempotency,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        logger.WithField("component", "http"),
	})

	// Фоновая чистка протухших idempotency-ключей.
	cleanupWorker := idempotency.NewCleanupWorker(
		deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	go cleanupWorker.Run(ctx)

	v, _, _ := version.Info()
	healthHandler := healthcheck.NewHandler(v)
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", deps.Store.DB()))
	}

	opsSrv := startOpsServer(ctx, cfg.OpsAddr, logger, healthHandler)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("API сервер слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем API сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(opsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(opsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startOpsServer запускает служебный HTTP-сервер: метрики и health checks.
func startOpsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
