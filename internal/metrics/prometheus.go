package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the ticket gateway
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Ledger connection metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec

	// Transaction metrics
	TransactionsSubmittedTotal *prometheus.CounterVec
	TransactionsConfirmedTotal *prometheus.CounterVec
	ConfirmationDuration       *prometheus.HistogramVec
	TransfersRejectedTotal     *prometheus.CounterVec

	// Read-side metrics
	CatalogLoadsTotal        *prometheus.CounterVec
	CatalogPlaceholdersTotal prometheus.Counter
	EventsListed             prometheus.Gauge
	TicketDiscoveryDuration  prometheus.Histogram
	WalletProbesTotal        *prometheus.CounterVec

	// Check-in metrics
	ScansTotal    *prometheus.CounterVec
	CheckInsTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	DatabaseConnections       prometheus.Gauge

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	NotificationDuration      *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics on a fresh registry
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_connection_errors_total",
				Help: "Total number of connection errors to ledger nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_rpc_requests_total",
				Help: "Total number of RPC requests made to ledger nodes",
			},
			[]string{"endpoint", "method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_gateway_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to ledger nodes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),

		TransactionsSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_transactions_submitted_total",
				Help: "Total number of transactions submitted",
			},
			[]string{"kind", "status"},
		),

		TransactionsConfirmedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_transactions_confirmed_total",
				Help: "Total number of transactions that reached a final state",
			},
			[]string{"kind", "status"},
		),

		ConfirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_gateway_confirmation_duration_seconds",
				Help:    "Time between submission and inclusion",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"kind"},
		),

		TransfersRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_transfers_rejected_total",
				Help: "Transfers rejected before submission",
			},
			[]string{"reason"},
		),

		CatalogLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_catalog_loads_total",
				Help: "Total number of event catalog builds",
			},
			[]string{"status"},
		),

		CatalogPlaceholdersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ticket_gateway_catalog_placeholders_total",
				Help: "Events rendered as placeholders after a failed detail read",
			},
		),

		EventsListed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticket_gateway_events_listed",
				Help: "Number of events returned by the registry on the last catalog build",
			},
		),

		TicketDiscoveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ticket_gateway_ticket_discovery_duration_seconds",
				Help:    "Duration of owned-ticket discovery",
				Buckets: prometheus.DefBuckets,
			},
		),

		WalletProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_wallet_probes_total",
				Help: "Total number of wallet probes",
			},
			[]string{"result"},
		),

		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_scans_total",
				Help: "Total number of classified QR payloads",
			},
			[]string{"kind"},
		),

		CheckInsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_checkins_total",
				Help: "Total number of ticket check-ins",
			},
			[]string{"result"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_gateway_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		DatabaseConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticket_gateway_database_connections",
				Help: "Number of open database connections",
			},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "type"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_notification_failures_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel", "type", "error"},
		),

		NotificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_gateway_notification_duration_seconds",
				Help:    "Duration of notification delivery",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel", "type"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_gateway_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_gateway_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticket_gateway_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ticket_gateway_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticket_gateway_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticket_gateway_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// Registry returns the registry all metrics are registered on
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(endpoint, method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordTransactionSubmitted records a submission attempt
func (m *PrometheusMetrics) RecordTransactionSubmitted(kind, status string) {
	m.TransactionsSubmittedTotal.WithLabelValues(kind, status).Inc()
}

// RecordTransactionConfirmed records the final outcome of a submitted transaction
func (m *PrometheusMetrics) RecordTransactionConfirmed(kind, status string, duration time.Duration) {
	m.TransactionsConfirmedTotal.WithLabelValues(kind, status).Inc()
	m.ConfirmationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTransferRejected records a transfer refused before any remote call
func (m *PrometheusMetrics) RecordTransferRejected(reason string) {
	m.TransfersRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordCatalogLoad records a catalog build and its placeholder count
func (m *PrometheusMetrics) RecordCatalogLoad(status string, events, placeholders int) {
	m.CatalogLoadsTotal.WithLabelValues(status).Inc()
	m.EventsListed.Set(float64(events))
	m.CatalogPlaceholdersTotal.Add(float64(placeholders))
}

// RecordTicketDiscovery records the time spent discovering owned tickets
func (m *PrometheusMetrics) RecordTicketDiscovery(duration time.Duration) {
	m.TicketDiscoveryDuration.Observe(duration.Seconds())
}

// RecordWalletProbe records the outcome of a wallet probe
func (m *PrometheusMetrics) RecordWalletProbe(result string) {
	m.WalletProbesTotal.WithLabelValues(result).Inc()
}

// RecordScan records a classified QR payload
func (m *PrometheusMetrics) RecordScan(kind string) {
	m.ScansTotal.WithLabelValues(kind).Inc()
}

// RecordCheckIn records a check-in verification
func (m *PrometheusMetrics) RecordCheckIn(result string) {
	m.CheckInsTotal.WithLabelValues(result).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates the database connections metric
func (m *PrometheusMetrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, notificationType string, duration time.Duration) {
	m.NotificationsSentTotal.WithLabelValues(channel, notificationType).Inc()
	m.NotificationDuration.WithLabelValues(channel, notificationType).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, notificationType, errorType string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, notificationType, errorType).Inc()
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

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
