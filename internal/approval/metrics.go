package approval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes coordinator counters to Prometheus.
type Metrics struct {
	pending        prometheus.Gauge
	pauses         prometheus.Counter
	pauseFailures  prometheus.Counter
	resumes        prometheus.Counter
	resumeSkips    *prometheus.CounterVec
	pruned         prometheus.Counter
	resolutions    *prometheus.CounterVec
}

// NewMetrics registers the coordinator metrics with reg. A nil registerer
// gets a private registry, which keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "studio_approvals_pending",
			Help: "Number of approvals currently awaiting a decision.",
		}),
		pauses: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_approval_pauses_total",
			Help: "Runs paused because an approval arrived.",
		}),
		pauseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_approval_pause_failures_total",
			Help: "Pause attempts that failed with a non-disconnect error.",
		}),
		resumes: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_approval_resumes_total",
			Help: "Runs resumed after an allow decision.",
		}),
		resumeSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_approval_resume_skips_total",
			Help: "Auto-resume attempts that were skipped, by reason.",
		}, []string{"reason"}),
		pruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_approvals_pruned_total",
			Help: "Approvals removed after expiring undecided.",
		}),
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_approval_resolutions_total",
			Help: "Applied decisions, by decision kind.",
		}, []string{"decision"}),
	}
}

// SetPending updates the pending-approvals gauge.
func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

// ObservePause counts a successful pause.
func (m *Metrics) ObservePause() {
	m.pauses.Inc()
}

// ObservePauseFailure counts a rolled-back pause.
func (m *Metrics) ObservePauseFailure() {
	m.pauseFailures.Inc()
}

// ObserveResume counts a delivered continuation.
func (m *Metrics) ObserveResume() {
	m.resumes.Inc()
}

// ObserveResumeSkip counts a skipped resume by reason.
func (m *Metrics) ObserveResumeSkip(reason SkipReason) {
	m.resumeSkips.WithLabelValues(string(reason)).Inc()
}

// ObservePruned counts pruned approvals.
func (m *Metrics) ObservePruned(n int) {
	m.pruned.Add(float64(n))
}

// ObserveResolution counts an applied decision.
func (m *Metrics) ObserveResolution(decision Decision) {
	m.resolutions.WithLabelValues(string(decision)).Inc()
}
