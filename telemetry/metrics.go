// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	JobsStarted       prometheus.Counter
	JobsSucceeded     prometheus.Counter
	JobsFailed        *prometheus.CounterVec // reason: validation|internal|canceled
	JobsRejected      prometheus.Counter
	BatchesFetched    prometheus.Counter
	FetchRetries      prometheus.Counter
	PermissionDenials *prometheus.CounterVec // endpoint
	MessagesMatched   *prometheus.CounterVec // endpoint

	// Histograms (seconds)
	JobDuration prometheus.Observer

	// Gauges
	ActiveJobs prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		JobsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "officer_sync_jobs_started_total", Help: "Number of sync jobs started"})
		JobsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "officer_sync_jobs_succeeded_total", Help: "Number of sync jobs that streamed done"})
		JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "officer_sync_jobs_failed_total", Help: "Number of sync jobs ending without done"}, []string{"reason"})
		JobsRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "officer_sync_jobs_rejected_total", Help: "Sync requests turned away by auth or rate limiting"})
		BatchesFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "officer_sync_batches_fetched_total", Help: "Message history pages fetched from Discord"})
		FetchRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "officer_sync_fetch_retries_total", Help: "Failed page fetches that were retried"})
		PermissionDenials = promauto.NewCounterVec(prometheus.CounterOpts{Name: "officer_sync_permission_denied_total", Help: "Channels skipped because the token cannot read them"}, []string{"endpoint"})
		MessagesMatched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "officer_sync_messages_matched_total", Help: "Messages attributed to a roster member"}, []string{"endpoint"})
		JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "officer_sync_job_duration_seconds", Help: "Sync job duration seconds", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}})
		ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{Name: "officer_sync_active_jobs", Help: "Sync jobs currently holding a slot"})
	})
}

// IncCounter increments c if metrics were initialised.
func IncCounter(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncLabeled increments vec{label} if metrics were initialised.
func IncLabeled(vec *prometheus.CounterVec, label string) {
	if vec != nil {
		vec.WithLabelValues(label).Inc()
	}
}

// AddLabeled adds n to vec{label} if metrics were initialised.
func AddLabeled(vec *prometheus.CounterVec, label string, n int) {
	if vec != nil && n > 0 {
		vec.WithLabelValues(label).Add(float64(n))
	}
}

// SetActiveJobs records how many jobs currently run.
func SetActiveJobs(n int) {
	if ActiveJobs != nil {
		ActiveJobs.Set(float64(n))
	}
}

// ObserveSince records the time elapsed since start in obs if non-nil.
func ObserveSince(obs prometheus.Observer, start time.Time) time.Duration {
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
