package provider

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by every Provider in the process.
type Metrics struct {
	RPCRequestsTotal  *prometheus.CounterVec
	RPCRequestsFailed *prometheus.CounterVec
	RPCLatency        *prometheus.HistogramVec
	RPCFailovers      *prometheus.CounterVec
	RPCExhausted      *prometheus.CounterVec

	AsyncPending         prometheus.Gauge
	AsyncDelivered       prometheus.Counter
	AsyncDropped         prometheus.Counter
	AsyncCallbackPanics  prometheus.Counter
	TxWaitTimeouts       prometheus.Counter
	PriorityFeeFallbacks prometheus.Counter
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics returns the singleton Metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		RPCRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_rpc_requests_total",
			Help: "Total number of RPC attempts by endpoint and method",
		}, []string{"endpoint", "method"}),
		RPCRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_rpc_requests_failed_total",
			Help: "Total number of failed RPC attempts by endpoint and method",
		}, []string{"endpoint", "method"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_rpc_request_duration_seconds",
			Help:    "RPC attempt latency by endpoint and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		RPCFailovers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_rpc_failovers_total",
			Help: "Calls answered by an endpoint other than the first",
		}, []string{"method"}),
		RPCExhausted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_rpc_exhausted_total",
			Help: "Calls for which every configured endpoint failed",
		}, []string{"method"}),

		AsyncPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "provider_async_pending",
			Help: "Async requests awaiting delivery",
		}),
		AsyncDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "provider_async_delivered_total",
			Help: "Async callbacks invoked",
		}),
		AsyncDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "provider_async_dropped_total",
			Help: "Async requests discarded by shutdown without a callback",
		}),
		AsyncCallbackPanics: promauto.NewCounter(prometheus.CounterOpts{
			Name: "provider_async_callback_panics_total",
			Help: "Async callbacks that panicked",
		}),
		TxWaitTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "provider_tx_wait_timeouts_total",
			Help: "Transaction waits that reached their deadline",
		}),
		PriorityFeeFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "provider_priority_fee_fallbacks_total",
			Help: "Fee estimates that used the default priority fee",
		}),
	}
}

// RecordRPCRequest records one attempt against one endpoint
func (m *Metrics) RecordRPCRequest(endpoint, method string, duration time.Duration, success bool) {
	labels := prometheus.Labels{"endpoint": endpoint, "method": method}
	m.RPCRequestsTotal.With(labels).Inc()
	m.RPCLatency.With(labels).Observe(duration.Seconds())
	if !success {
		m.RPCRequestsFailed.With(labels).Inc()
	}
}

func (m *Metrics) RecordFailover(method string) {
	m.RPCFailovers.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordExhausted(method string) {
	m.RPCExhausted.WithLabelValues(method).Inc()
}
