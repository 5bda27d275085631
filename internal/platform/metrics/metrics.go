package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ContractsCreated   prometheus.Counter
	ContractsSigned    prometheus.Counter
	ContractsCompleted prometheus.Counter
	DisputesRaised     prometheus.Counter
	DisputesResolved   prometheus.Counter

	RPCAttempts      *prometheus.CounterVec
	RPCErrors        *prometheus.CounterVec
	HealthyEndpoints prometheus.Gauge
	BalanceCacheHits prometheus.Counter
	BalanceCacheMiss prometheus.Counter

	RequestLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in
// tests to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ContractsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "pact_contracts_created_total",
			Help: "Total number of contracts created",
		}),
		ContractsSigned: factory.NewCounter(prometheus.CounterOpts{
			Name: "pact_contracts_signed_total",
			Help: "Total number of accepted party signatures",
		}),
		ContractsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pact_contracts_completed_total",
			Help: "Total number of contracts that reached fully_signed",
		}),
		DisputesRaised: factory.NewCounter(prometheus.CounterOpts{
			Name: "pact_disputes_raised_total",
			Help: "Total number of disputes raised",
		}),
		DisputesResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "pact_disputes_resolved_total",
			Help: "Total number of disputes resolved or rejected",
		}),
		RPCAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pact_chain_rpc_attempts_total",
			Help: "Ledger RPC attempts by endpoint",
		}, []string{"endpoint"}),
		RPCErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pact_chain_rpc_errors_total",
			Help: "Ledger RPC failures by endpoint",
		}, []string{"endpoint"}),
		HealthyEndpoints: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pact_chain_healthy_endpoints",
			Help: "Number of RPC endpoints currently marked healthy",
		}),
		BalanceCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "pact_chain_balance_cache_hits_total",
			Help: "Balance reads served from cache",
		}),
		BalanceCacheMiss: factory.NewCounter(prometheus.CounterOpts{
			Name: "pact_chain_balance_cache_misses_total",
			Help: "Balance reads that went to the network",
		}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pact_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
