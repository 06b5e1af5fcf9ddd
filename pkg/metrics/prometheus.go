package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	orders      *prometheus.CounterVec
	brokerCalls *prometheus.CounterVec
	retries     *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	notional    *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the collectors with the default registry. Call it once per process.
func New() *Recorder {
	return &Recorder{
		orders: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrade_orders_total",
				Help: "Orders handled by the executor, by side, country and outcome",
			},
			[]string{"side", "country", "result"},
		),
		brokerCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrade_broker_calls_total",
				Help: "Brokerage API calls by transaction id and HTTP status",
			},
			[]string{"tr_id", "status"},
		),
		retries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrade_broker_retries_total",
				Help: "Brokerage call retries by failure kind",
			},
			[]string{"kind"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrade_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		notional: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autotrade_session_notional",
				Help: "Notional submitted in the last session per market and side",
			},
			[]string{"market", "side"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autotrade_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordOrder(side, country, result string) {
	r.orders.WithLabelValues(side, country, result).Inc()
}

func (r *Recorder) RecordBrokerCall(trID, status string) {
	r.brokerCalls.WithLabelValues(trID, status).Inc()
}

func (r *Recorder) RecordRetry(kind string) {
	r.retries.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordNotional(market, side string, value float64) {
	r.notional.WithLabelValues(market, side).Set(value)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
