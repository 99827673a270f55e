package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics содержит метрики сверки оплат и приёма webhook.
type ReconcileMetrics struct {
	// Счётчики переходов
	reconcileStarted   prometheus.Counter
	reconcileCompleted prometheus.Counter
	reconcileReplayed  prometheus.Counter
	reconcileConflicts prometheus.Counter
	reconcileFailed    prometheus.Counter

	// Ретраи CAS-записи
	casRetries prometheus.Counter

	// Гистограмма времени выполнения перехода
	reconcileDuration prometheus.Histogram

	// Счётчики webhook по исходу обработки
	webhookReceived prometheus.Counter
	webhookRejected prometheus.Counter
	webhookIgnored  *prometheus.CounterVec
}

// NewReconcileMetrics создаёт новый экземпляр метрик reconciliation.
func NewReconcileMetrics() *ReconcileMetrics {
	return newReconcileMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newReconcileMetricsWithRegisterer(registerer prometheus.Registerer) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReconcileMetrics{
		reconcileStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_reconcile_started_total",
			Help: "Total number of reconciliation transitions started",
		}),
		reconcileCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_reconcile_completed_total",
			Help: "Total number of reconciliation transitions applied",
		}),
		reconcileReplayed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_reconcile_replayed_total",
			Help: "Total number of duplicate completion signals absorbed as no-ops",
		}),
		reconcileConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_reconcile_conflicts_total",
			Help: "Total number of reconciliation conflicts requiring manual review",
		}),
		reconcileFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_reconcile_failed_total",
			Help: "Total number of reconciliation transitions failed",
		}),
		casRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_reconcile_cas_retries_total",
			Help: "Total number of conditional-write retries after version conflicts",
		}),
		reconcileDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_reconcile_duration_seconds",
			Help:    "Duration of reconciliation transitions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		webhookReceived: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_webhook_received_total",
			Help: "Total number of provider webhook deliveries received",
		}),
		webhookRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_webhook_rejected_total",
			Help: "Total number of webhook deliveries rejected by signature verification",
		}),
		webhookIgnored: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_webhook_ignored_total",
			Help: "Total number of acknowledged webhook deliveries of uninteresting types",
		}, []string{"event_type"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordReconcileStarted увеличивает счётчик начатых переходов.
func (m *ReconcileMetrics) RecordReconcileStarted() {
	m.reconcileStarted.Inc()
}

// RecordReconcileCompleted увеличивает счётчик применённых переходов.
func (m *ReconcileMetrics) RecordReconcileCompleted() {
	m.reconcileCompleted.Inc()
}

// RecordReconcileReplayed увеличивает счётчик поглощённых дубликатов.
func (m *ReconcileMetrics) RecordReconcileReplayed() {
	m.reconcileReplayed.Inc()
}

// RecordReconcileConflict увеличивает счётчик конфликтов сверки.
func (m *ReconcileMetrics) RecordReconcileConflict() {
	m.reconcileConflicts.Inc()
}

// RecordReconcileFailed увеличивает счётчик неудачных переходов.
func (m *ReconcileMetrics) RecordReconcileFailed() {
	m.reconcileFailed.Inc()
}

// RecordCASRetry увеличивает счётчик повторов условной записи.
func (m *ReconcileMetrics) RecordCASRetry() {
	m.casRetries.Inc()
}

// RecordReconcileDuration записывает время выполнения перехода.
func (m *ReconcileMetrics) RecordReconcileDuration(duration time.Duration) {
	m.reconcileDuration.Observe(duration.Seconds())
}

// RecordWebhookReceived увеличивает счётчик принятых доставок webhook.
func (m *ReconcileMetrics) RecordWebhookReceived() {
	m.webhookReceived.Inc()
}

// RecordWebhookRejected увеличивает счётчик отклонённых по подписи доставок.
func (m *ReconcileMetrics) RecordWebhookRejected() {
	m.webhookRejected.Inc()
}

// RecordWebhookIgnored увеличивает счётчик проигнорированных типов событий.
func (m *ReconcileMetrics) RecordWebhookIgnored(eventType string) {
	m.webhookIgnored.WithLabelValues(eventType).Inc()
}
