package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciler metrics
	ReconcileRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mosquitto_manager_reconcile_runs_total",
			Help: "Total number of reconciliation pipeline runs by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mosquitto_manager_reconcile_duration_seconds",
			Help:    "Reconciliation pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	ReconcileStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mosquitto_manager_reconcile_step_duration_seconds",
			Help:    "Duration of individual reconciliation steps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	CredentialFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mosquitto_manager_credential_failures_total",
			Help: "Total number of broker users that could not be written to the password file",
		},
	)

	SyncFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mosquitto_manager_secure_sync_failures_total",
			Help: "Total number of artifacts that failed to sync to the secure directory",
		},
	)

	// Broker process metrics
	BrokerSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mosquitto_manager_broker_signals_total",
			Help: "Total number of signals sent to the broker by action and result",
		},
		[]string{"action", "result"},
	)

	BrokerUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mosquitto_manager_broker_up",
			Help: "Whether the broker process is alive (1 = up, 0 = down)",
		},
	)

	// Session tracker metrics
	SessionsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mosquitto_manager_sessions_connected",
			Help: "Number of client sessions currently tracked from the broker log",
		},
	)

	LogLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mosquitto_manager_log_lines_total",
			Help: "Total number of broker log lines classified by shape",
		},
		[]string{"shape"},
	)

	// Stats aggregator metrics
	BrokerStat = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mosquitto_manager_broker_stat",
			Help: "Latest value of a broker $SYS metric",
		},
		[]string{"metric"},
	)

	StatsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mosquitto_manager_stats_connected",
			Help: "Whether the $SYS subscription is connected (1 = connected, 0 = disconnected)",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mosquitto_manager_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mosquitto_manager_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	PushSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mosquitto_manager_push_subscribers",
			Help: "Number of connected push channel subscribers",
		},
	)

	// Component health, mirrored from the health registry
	ComponentUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mosquitto_manager_component_up",
			Help: "Whether a manager component last reported healthy (1 = healthy, 0 = unhealthy)",
		},
		[]string{"component"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ReconcileRunsTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(ReconcileStepDuration)
	prometheus.MustRegister(CredentialFailuresTotal)
	prometheus.MustRegister(SyncFailuresTotal)
	prometheus.MustRegister(BrokerSignalsTotal)
	prometheus.MustRegister(BrokerUp)
	prometheus.MustRegister(SessionsConnected)
	prometheus.MustRegister(LogLinesTotal)
	prometheus.MustRegister(BrokerStat)
	prometheus.MustRegister(StatsConnected)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(PushSubscribers)
	prometheus.MustRegister(ComponentUp)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
