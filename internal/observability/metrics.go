package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	interviewTurnsTotal      *prometheus.CounterVec
	interviewsCompletedTotal prometheus.Counter
	liveSessions             prometheus.Gauge
	proctoringChecksTotal    *prometheus.CounterVec
	proctoringViolations     *prometheus.CounterVec
	finalizeSeconds          prometheus.Histogram
	reportsTotal             *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proprep_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proprep_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0, 30.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proprep_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		interviewTurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proprep_interview_turns_total",
			Help: "Interview turns processed, labelled by outcome.",
		}, []string{"outcome"})

		interviewsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proprep_interviews_completed_total",
			Help: "Interviews that reached the complete phase.",
		})

		liveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proprep_live_sessions",
			Help: "Interview sessions currently hosted by this node.",
		})

		proctoringChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proprep_proctoring_checks_total",
			Help: "Proctoring frame checks, labelled by result.",
		}, []string{"result"})

		proctoringViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proprep_proctoring_violations_total",
			Help: "Proctoring violations detected, labelled by type.",
		}, []string{"violation"})

		finalizeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proprep_finalize_seconds",
			Help:    "Time spent persisting a completed interview.",
			Buckets: prometheus.DefBuckets,
		})

		reportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proprep_summary_reports_total",
			Help: "Summary report pipeline runs, labelled by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			interviewTurnsTotal,
			interviewsCompletedTotal,
			liveSessions,
			proctoringChecksTotal,
			proctoringViolations,
			finalizeSeconds,
			reportsTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func InterviewTurns() *prometheus.CounterVec {
	RegisterMetrics()
	return interviewTurnsTotal
}

func InterviewsCompleted() prometheus.Counter {
	RegisterMetrics()
	return interviewsCompletedTotal
}

func LiveSessions() prometheus.Gauge {
	RegisterMetrics()
	return liveSessions
}

func ProctoringChecks() *prometheus.CounterVec {
	RegisterMetrics()
	return proctoringChecksTotal
}

func ProctoringViolations() *prometheus.CounterVec {
	RegisterMetrics()
	return proctoringViolations
}

func FinalizeDuration() prometheus.Histogram {
	RegisterMetrics()
	return finalizeSeconds
}

func ReportsGenerated() *prometheus.CounterVec {
	RegisterMetrics()
	return reportsTotal
}
