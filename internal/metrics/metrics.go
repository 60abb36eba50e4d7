package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics (ops endpoints)
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booru_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Report metrics
var (
	ReportsFiledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_reports_filed_total",
		Help: "Total number of user reports filed",
	}, []string{"category"})

	ReportResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_report_resolutions_total",
		Help: "Total number of triaged reports by resolution",
	}, []string{"resolution"})

	TagSuggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_tag_suggestions_total",
		Help: "Total number of tag suggestions by final result",
	}, []string{"result"})
)

// Review metrics
var (
	ReviewSessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_review_sessions_started_total",
		Help: "Total number of review sessions started",
	}, []string{"source"})

	ReviewSessionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_review_sessions_closed_total",
		Help: "Total number of review sessions closed",
	}, []string{"outcome", "reason"})

	ReviewSessionsExtendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_review_sessions_extended_total",
		Help: "Total number of review session extensions",
	}, []string{"trigger"})

	VotesCastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_votes_cast_total",
		Help: "Total number of votes cast or changed",
	}, []string{"value"})
)

// Reconciler metrics
var (
	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booru_sweep_runs_total",
		Help: "Total number of reconciliation sweeps",
	})

	SweepSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_sweep_sessions_total",
		Help: "Sessions handled by reconciliation sweeps by result",
	}, []string{"result"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booru_sweep_duration_seconds",
		Help:    "Reconciliation sweep duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	UpstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booru_upstream_errors_total",
		Help: "Total number of failed calls to external services",
	}, []string{"service", "op"})
)

// Business metrics (gauges updated periodically by collector)
var (
	PendingReports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "booru_reports_pending",
		Help: "Number of pending reports",
	})

	OpenReviewSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "booru_review_sessions_open",
		Help: "Number of open review sessions",
	})

	ExpiredReviewSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "booru_review_sessions_expired",
		Help: "Number of open review sessions past their deadline",
	})
)

// NormalizePath reduces high-cardinality path labels. The ops server only
// serves a handful of fixed routes; anything else collapses into one label.
func NormalizePath(path string) string {
	switch path {
	case "/metrics", "/healthz", "/readyz":
		return path
	}
	if strings.HasPrefix(path, "/debug/") {
		return "/debug/*"
	}
	return "/other"
}
