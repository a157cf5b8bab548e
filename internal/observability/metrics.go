package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	httpInFlightGauge      prometheus.Gauge
	ledgerImbalanceCounter *prometheus.CounterVec
	ledgerInvariantCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	paymentOutcomeCounter  *prometheus.CounterVec
	dealTransitionCounter  *prometheus.CounterVec
	eventPublishCounter    *prometheus.CounterVec
	fxQuoteCacheCounter    *prometheus.CounterVec
	janitorRowsCounter     *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		httpInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Wallets whose journal totals diverged from their balances",
		}, []string{"currency"})

		ledgerInvariantCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_invariant_violations_total",
			Help: "Ledger mutations refused because they would break a balance invariant",
		}, []string{"operation"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		paymentOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_payments_total",
			Help: "Payment state changes by resulting status",
		}, []string{"status"})

		dealTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_deal_transitions_total",
			Help: "Deal status transitions",
		}, []string{"from", "to"})

		eventPublishCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_events_published_total",
			Help: "Domain events handed to the broker",
		}, []string{"subject", "result"})

		fxQuoteCacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_quote_cache_total",
			Help: "FX quote cache lookups",
		}, []string{"result"})

		janitorRowsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_rows_total",
			Help: "Rows cleaned up by the janitor",
		}, []string{"task"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			httpInFlightGauge,
			ledgerImbalanceCounter,
			ledgerInvariantCounter,
			idempotencyCounter,
			paymentOutcomeCounter,
			dealTransitionCounter,
			eventPublishCounter,
			fxQuoteCacheCounter,
			janitorRowsCounter,
			workerRunCounter,
		)
	})
}

// TrackInFlight counts a request as in flight until the returned func is called.
func TrackInFlight() func() {
	if httpInFlightGauge == nil {
		return func() {}
	}
	httpInFlightGauge.Inc()
	return httpInFlightGauge.Dec
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerImbalance(currency string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(currency).Inc()
}

func IncrementLedgerInvariantViolation(operation string) {
	if ledgerInvariantCounter == nil {
		return
	}
	ledgerInvariantCounter.WithLabelValues(operation).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementPaymentOutcome(status string) {
	if paymentOutcomeCounter == nil {
		return
	}
	paymentOutcomeCounter.WithLabelValues(status).Inc()
}

func IncrementDealTransition(from, to string) {
	if dealTransitionCounter == nil {
		return
	}
	dealTransitionCounter.WithLabelValues(from, to).Inc()
}

func IncrementEventPublish(subject, result string) {
	if eventPublishCounter == nil {
		return
	}
	eventPublishCounter.WithLabelValues(subject, result).Inc()
}

func IncrementFXQuoteCache(result string) {
	if fxQuoteCacheCounter == nil {
		return
	}
	fxQuoteCacheCounter.WithLabelValues(result).Inc()
}

func AddJanitorRows(task string, n int64) {
	if janitorRowsCounter == nil || n <= 0 {
		return
	}
	janitorRowsCounter.WithLabelValues(task).Add(float64(n))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
