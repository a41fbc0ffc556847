package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the funding workflow.
type Metrics struct {
	ProjectsProposed  prometheus.Counter
	ProjectsApproved  prometheus.Counter
	ProjectsDelivered prometheus.Counter
	ProjectsRemoved   prometheus.Counter
	Investments       prometheus.Counter
	ProposalsReleased prometheus.Counter
	ThresholdRejected prometheus.Counter
	ReleaseDuration   prometheus.Histogram
	InvestDuration    prometheus.Histogram
}

// New creates a Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		ProjectsProposed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "daofund_projects_proposed_total",
			Help: "Total number of projects registered through a cleared vote",
		}),
		ProjectsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "daofund_projects_approved_total",
			Help: "Total number of projects approved with budgets",
		}),
		ProjectsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "daofund_projects_delivered_total",
			Help: "Total number of projects fully delivered",
		}),
		ProjectsRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "daofund_projects_removed_total",
			Help: "Total number of projects removed through a governed vote",
		}),
		Investments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "daofund_investments_total",
			Help: "Total number of investment calls that escrowed funds",
		}),
		ProposalsReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "daofund_proposals_released_total",
			Help: "Total number of proposals released past the threshold gate",
		}),
		ThresholdRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "daofund_threshold_rejections_total",
			Help: "Total number of release attempts failing the threshold gate",
		}),
		ReleaseDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "daofund_release_duration_seconds",
			Help:    "Duration of release operations (vote gate critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		InvestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "daofund_invest_duration_seconds",
			Help:    "Duration of invest operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveRelease records the duration of a release operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRelease(start time.Time) {
	m.ReleaseDuration.Observe(time.Since(start).Seconds())
}

// ObserveInvest records the duration of an invest operation.
func (m *Metrics) ObserveInvest(start time.Time) {
	m.InvestDuration.Observe(time.Since(start).Seconds())
}
