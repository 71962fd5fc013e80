// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Distributor metrics
	LeadsAssigned    *prometheus.CounterVec
	NoEligibleAgent  *prometheus.CounterVec
	AssignmentPasses *prometheus.CounterVec
	PassDuration     prometheus.Histogram

	// Workflow metrics
	ApprovalDecisions *prometheus.CounterVec

	// Integration and job metrics
	SalesforceLeads *prometheus.CounterVec
	JobRuns         *prometheus.CounterVec
	ReportsExported *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests; production uses the default registry.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LeadsAssigned: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auto_assign_leads_assigned_total",
				Help: "Leads bound to an agent by the distributor",
			},
			[]string{"source"},
		),
		NoEligibleAgent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auto_assign_no_eligible_agent_total",
				Help: "Passes that found unassigned leads but no active agent for the source",
			},
			[]string{"source"},
		),
		AssignmentPasses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auto_assign_passes_total",
				Help: "Distributor passes by trigger and outcome",
			},
			[]string{"trigger", "outcome"}, // http|cron|asynq, ok|error
		),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "auto_assign_pass_duration_seconds",
			Help:    "Wall time of one distributor pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		ApprovalDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_decisions_total",
				Help: "Approval workflow transitions by action and outcome",
			},
			[]string{"action", "outcome"}, // submit|approve|reject, success|denied|conflict|invalid
		),
		SalesforceLeads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesforce_leads_total",
				Help: "Salesforce leads processed by result",
			},
			[]string{"result"}, // created|updated|duplicate|skipped|failed
		),
		JobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "background_job_runs_total",
				Help: "Scheduled job executions",
			},
			[]string{"job", "outcome"},
		),
		ReportsExported: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reports_exported_total",
				Help: "Reports rendered by name and format",
			},
			[]string{"report", "format"},
		),
	}
}

// NewDefault registers on the process-wide default registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// Middleware records request count and latency keyed by route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveJob counts one job execution.
func (m *Metrics) ObserveJob(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.JobRuns.WithLabelValues(job, outcome).Inc()
}
