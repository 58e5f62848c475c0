package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the service
type PrometheusMetrics struct {
	// Chain record metrics
	ChainsStoredTotal  *prometheus.CounterVec
	ChainsByDecision   *prometheus.GaugeVec
	VerificationsTotal *prometheus.CounterVec
	StoreChainDuration prometheus.Histogram

	// Provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	ProviderBytesUploaded   *prometheus.CounterVec

	// Vote metrics
	VotesCastTotal     *prometheus.CounterVec
	VoteSubmissions    *prometheus.CounterVec
	PendingVotes       prometheus.Gauge
	VersionConflicts   prometheus.Counter
	ContractCallsTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	StreamClients             prometheus.Gauge

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates metrics registered with the default registry
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWith(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsWith creates metrics registered with reg
func NewPrometheusMetricsWith(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)

	return &PrometheusMetrics{
		ChainsStoredTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_chains_stored_total",
				Help: "Total number of chain records stored, by decision and status",
			},
			[]string{"decision", "status"},
		),

		ChainsByDecision: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "filerug_chains",
				Help: "Number of indexed chain records per decision bucket",
			},
			[]string{"decision"},
		),

		VerificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_storage_proof_verifications_total",
				Help: "Storage proof verifications by result",
			},
			[]string{"result"},
		),

		StoreChainDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "filerug_store_chain_duration_seconds",
				Help:    "Time spent hashing, uploading and indexing a chain record",
				Buckets: prometheus.DefBuckets,
			},
		),

		ProviderRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_provider_requests_total",
				Help: "Requests made to storage providers",
			},
			[]string{"provider", "operation", "status"},
		),

		ProviderRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filerug_provider_request_duration_seconds",
				Help:    "Duration of storage provider requests",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "operation"},
		),

		ProviderBytesUploaded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_provider_uploaded_bytes_total",
				Help: "Bytes uploaded to storage providers",
			},
			[]string{"provider"},
		),

		VotesCastTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_votes_cast_total",
				Help: "Memecoin votes cast by choice and status",
			},
			[]string{"vote", "status"},
		),

		VoteSubmissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_pending_vote_submissions_total",
				Help: "Pending vote submissions to the proposal contract",
			},
			[]string{"status"},
		),

		PendingVotes: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "filerug_pending_votes",
				Help: "Votes queued and not yet submitted",
			},
		),

		VersionConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "filerug_pending_vote_version_conflicts_total",
				Help: "Optimistic concurrency conflicts on the pending vote queue",
			},
		),

		ContractCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_contract_calls_total",
				Help: "Calls made to governance contracts",
			},
			[]string{"contract", "method", "status"},
		),

		DatabaseOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filerug_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsSentTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "variant"},
		),

		NotificationFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_notification_failures_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel"},
		),

		StreamClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "filerug_stream_clients",
				Help: "Connected websocket clients",
			},
		),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filerug_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filerug_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "filerug_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "filerug_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "filerug_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "filerug_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordChainStored records a stored chain record
func (m *PrometheusMetrics) RecordChainStored(decision, status string, duration time.Duration) {
	m.ChainsStoredTotal.WithLabelValues(decision, status).Inc()
	m.StoreChainDuration.Observe(duration.Seconds())
}

// UpdateChainsByDecision sets the indexed record count of a bucket
func (m *PrometheusMetrics) UpdateChainsByDecision(decision string, count int64) {
	m.ChainsByDecision.WithLabelValues(decision).Set(float64(count))
}

// RecordVerification records a storage proof verification
func (m *PrometheusMetrics) RecordVerification(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.VerificationsTotal.WithLabelValues(result).Inc()
}

// RecordProviderRequest records a storage provider request
func (m *PrometheusMetrics) RecordProviderRequest(provider, operation, status string, duration time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordBytesUploaded adds to the uploaded byte counter
func (m *PrometheusMetrics) RecordBytesUploaded(provider string, n int) {
	m.ProviderBytesUploaded.WithLabelValues(provider).Add(float64(n))
}

// RecordVoteCast records a memecoin vote
func (m *PrometheusMetrics) RecordVoteCast(vote, status string) {
	m.VotesCastTotal.WithLabelValues(vote, status).Inc()
}

// RecordVoteSubmission records a pending vote submission
func (m *PrometheusMetrics) RecordVoteSubmission(status string) {
	m.VoteSubmissions.WithLabelValues(status).Inc()
}

// UpdatePendingVotes sets the pending vote gauge
func (m *PrometheusMetrics) UpdatePendingVotes(count int) {
	m.PendingVotes.Set(float64(count))
}

// RecordVersionConflict records an optimistic concurrency conflict
func (m *PrometheusMetrics) RecordVersionConflict() {
	m.VersionConflicts.Inc()
}

// RecordContractCall records a governance contract call
func (m *PrometheusMetrics) RecordContractCall(contract, method, status string) {
	m.ContractCallsTotal.WithLabelValues(contract, method, status).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, variant string) {
	m.NotificationsSentTotal.WithLabelValues(channel, variant).Inc()
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel string) {
	m.NotificationFailuresTotal.WithLabelValues(channel).Inc()
}

// UpdateStreamClients sets the websocket client gauge
func (m *PrometheusMetrics) UpdateStreamClients(count int) {
	m.StreamClients.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}
