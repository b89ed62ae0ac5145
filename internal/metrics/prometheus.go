package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the reconciler, badge evaluator and notification bus

var (
	// Provider calls
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_api_calls_total",
			Help: "Total number of sports data provider calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tipster_api_call_duration_seconds",
			Help:    "Duration of provider calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ScraperRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_scraper_runs_total",
			Help: "Total number of racing scraper invocations",
		},
		[]string{"status"},
	)

	// Database
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tipster_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tipster_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tipster_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Reconciliation
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_sync_operations_total",
			Help: "Total number of reconciliation runs per sport",
		},
		[]string{"sport", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tipster_sync_duration_seconds",
			Help:    "Duration of reconciliation runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"sport"},
	)

	EventsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_events_upserted_total",
			Help: "Total number of sporting events upserted",
		},
		[]string{"sport"},
	)

	StatsReplaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_stats_replaced_total",
			Help: "Total number of events whose stats or results were replaced",
		},
		[]string{"sport"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_records_skipped_total",
			Help: "Total number of provider records skipped",
		},
		[]string{"sport", "reason"},
	)

	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_reconcile_lock_contention_total",
			Help: "Reconciliation runs skipped because another run held the lock",
		},
		[]string{"sport"},
	)

	LiveEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tipster_live_events",
			Help: "Number of in-progress events per sport",
		},
		[]string{"sport"},
	)

	// Badges and notifications
	BadgeEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_badge_evaluations_total",
			Help: "Total number of badge evaluations",
		},
		[]string{"status"},
	)

	BadgesAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge"},
	)

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_notifications_published_total",
			Help: "Total number of notifications published",
		},
		[]string{"kind"},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tipster_notifications_dropped_total",
			Help: "Notifications dropped for slow subscribers",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tipster_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulSync = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tipster_last_successful_sync_timestamp",
			Help: "Timestamp of last successful reconciliation per sport",
		},
		[]string{"sport"},
	)
)

// RecordAPICall records a provider call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordScraperRun records a racing scraper invocation
func RecordScraperRun(status string) {
	ScraperRunsTotal.WithLabelValues(status).Inc()
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordSync records a reconciliation run for one sport
func RecordSync(sport, status string, duration float64) {
	SyncOperationsTotal.WithLabelValues(sport, status).Inc()
	SyncDuration.WithLabelValues(sport).Observe(duration)

	if status == "success" {
		LastSuccessfulSync.WithLabelValues(sport).SetToCurrentTime()
	}
}

// RecordEventsUpserted adds to the upserted events counter
func RecordEventsUpserted(sport string, n int) {
	EventsUpserted.WithLabelValues(sport).Add(float64(n))
}

// RecordStatsReplaced records a stats or results replacement
func RecordStatsReplaced(sport string) {
	StatsReplaced.WithLabelValues(sport).Inc()
}

// RecordSkipped records a skipped provider record
func RecordSkipped(sport, reason string) {
	RecordsSkipped.WithLabelValues(sport, reason).Inc()
}

// RecordLockContention records a run skipped on a held lock
func RecordLockContention(sport string) {
	LockContention.WithLabelValues(sport).Inc()
}

// SetLiveEvents updates the live events gauge
func SetLiveEvents(sport string, n int) {
	LiveEvents.WithLabelValues(sport).Set(float64(n))
}

// RecordBadgeEvaluation records an evaluation and every newly awarded badge
func RecordBadgeEvaluation(status string, awarded []string) {
	BadgeEvaluations.WithLabelValues(status).Inc()
	for _, name := range awarded {
		BadgesAwarded.WithLabelValues(name).Inc()
	}
}

// RecordNotification records a published notification
func RecordNotification(kind string) {
	NotificationsPublished.WithLabelValues(kind).Inc()
}

// RecordNotificationDropped records a notification a subscriber could not keep up with
func RecordNotificationDropped() {
	NotificationsDropped.Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
