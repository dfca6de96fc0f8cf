package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonNotFound             = "not_found"
	JobReasonUnknown              = "unknown"
)

// JobMetrics captures background job health: runs, latency, timeouts and failures.
type JobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	timeouts    *prometheus.CounterVec
	errors      *prometheus.CounterVec
	processed   *prometheus.CounterVec
	lockSkipped *prometheus.CounterVec
	runLoopLag  prometheus.Observer
}

// NewJobMetrics registers job collectors on the default registerer.
func NewJobMetrics(cfg Config) *JobMetrics {
	return newJobMetrics(prometheus.DefaultRegisterer, cfg)
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "pawtraits"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pawtraits_job_runs_total",
			Help:        "Background job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pawtraits_job_duration_seconds",
			Help:        "Background job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"job"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pawtraits_job_timeouts_total",
			Help:        "Background job soft timeouts.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pawtraits_job_errors_total",
			Help:        "Background job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pawtraits_job_items_processed_total",
			Help:        "Items handled by background jobs by resource.",
			ConstLabels: constLabels,
		}, []string{"job", "resource"}),
		lockSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pawtraits_job_lock_skipped_total",
			Help:        "Job runs skipped because another instance held the lock.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "pawtraits_job_runloop_lag_seconds",
		Help:        "Delay between the scheduled tick and the actual run start.",
		Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
		ConstLabels: constLabels,
	})
	m.runLoopLag = lag

	registerer.MustRegister(m.runs, m.duration, m.timeouts, m.errors, m.processed, m.lockSkipped, lag)
	return m
}

func (m *JobMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *JobMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(job).Inc()
}

func (m *JobMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *JobMetrics) AddProcessed(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.processed.WithLabelValues(job, resource).Add(float64(count))
}

func (m *JobMetrics) IncLockSkipped(job string) {
	if m == nil {
		return
	}
	m.lockSkipped.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(max(d, 0).Seconds())
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return JobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return JobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return JobReasonUniqueViolation
	case errors.Is(err, gorm.ErrRecordNotFound), strings.Contains(err.Error(), "not_found"):
		return JobReasonNotFound
	default:
		return JobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
