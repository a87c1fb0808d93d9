package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Publish attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// MonitoringService records publishing metrics and error events.
type MonitoringService struct {
	logger   *zap.Logger
	gatherer prometheus.Gatherer

	orchestrations  prometheus.Counter
	jobsEnqueued    *prometheus.CounterVec
	retries         *prometheus.CounterVec
	cancels         prometheus.Counter
	publishAttempts *prometheus.CounterVec
	publishDuration prometheus.Histogram
	workerJobs      *prometheus.CounterVec
	errors          *prometheus.CounterVec
}

// NewMonitoringService registers the collectors on reg. Pass prometheus.NewRegistry() in tests
// to keep registrations isolated.
func NewMonitoringService(reg *prometheus.Registry, logger *zap.Logger) *MonitoringService {
	factory := promauto.With(reg)

	return &MonitoringService{
		logger:   logger,
		gatherer: reg,

		orchestrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "courier_orchestrations_total",
			Help: "Total number of orchestrated publish requests",
		}),
		jobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_jobs_enqueued_total",
			Help: "Total number of publishing jobs put on the queue",
		}, []string{"platform", "reason"}), // reason: orchestrate, retry
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_job_retries_total",
			Help: "Total number of failed jobs re-activated by retry",
		}, []string{"platform"}),
		cancels: factory.NewCounter(prometheus.CounterOpts{
			Name: "courier_cancellations_total",
			Help: "Total number of cancelled orchestrations",
		}),
		publishAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_publish_attempts_total",
			Help: "Total number of platform publish calls",
		}, []string{"platform", "outcome"}),
		publishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_direct_publish_duration_seconds",
			Help:    "Duration of synchronous multi-platform publish requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		workerJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_worker_jobs_total",
			Help: "Total number of queue messages handled by the worker",
		}, []string{"platform", "status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_errors_total",
			Help: "Total number of recorded errors",
		}, []string{"source"}),
	}
}

func (m *MonitoringService) RecordOrchestration() {
	m.orchestrations.Inc()
}

func (m *MonitoringService) RecordJobEnqueued(platform, reason string) {
	m.jobsEnqueued.WithLabelValues(platform, reason).Inc()
}

func (m *MonitoringService) RecordRetry(platform string) {
	m.retries.WithLabelValues(platform).Inc()
}

func (m *MonitoringService) RecordCancel() {
	m.cancels.Inc()
}

func (m *MonitoringService) RecordPublishAttempt(platform, outcome string) {
	m.publishAttempts.WithLabelValues(platform, outcome).Inc()
}

func (m *MonitoringService) ObservePublishDuration(d time.Duration) {
	m.publishDuration.Observe(d.Seconds())
}

func (m *MonitoringService) RecordWorkerJob(platform, status string) {
	m.workerJobs.WithLabelValues(platform, status).Inc()
}

// RecordError counts the error and logs it with its context fields.
func (m *MonitoringService) RecordError(source, title string, err error, fields ...zap.Field) {
	m.errors.WithLabelValues(source).Inc()
	m.logger.Error(title, append([]zap.Field{zap.String("source", source), zap.Error(err)}, fields...)...)
}

// Handler serves the registered metrics in the Prometheus text format.
func (m *MonitoringService) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
