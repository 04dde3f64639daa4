package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Deploy metrics
	DeploysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenfleet_deploys_total",
			Help: "Total number of deploy runs by outcome",
		},
		[]string{"outcome"},
	)

	DeployDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "greenfleet_deploy_duration_seconds",
			Help:    "Deploy run duration in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1200, 1800, 3600},
		},
	)

	RollbackResourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenfleet_rollback_resources_total",
			Help: "Total number of resources destroyed during rollback by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Lock metrics
	LockAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenfleet_lock_acquisitions_total",
			Help: "Total number of deploy lock acquisition attempts by result",
		},
		[]string{"result"},
	)

	// Poller metrics
	WaitIterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "greenfleet_wait_iterations_total",
			Help: "Total number of convergence predicate evaluations",
		},
	)

	// Fleet API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenfleet_api_requests_total",
			Help: "Total number of fleet API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greenfleet_api_request_duration_seconds",
			Help:    "Fleet API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(DeploysTotal)
	prometheus.MustRegister(DeployDuration)
	prometheus.MustRegister(RollbackResourcesTotal)
	prometheus.MustRegister(LockAcquisitionsTotal)
	prometheus.MustRegister(WaitIterationsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// WriteTextfile dumps the default registry to path in the node-exporter
// textfile collector format. Nothing is served over HTTP.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
