package mot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Correction rule names used as metric labels and in summaries
const (
	RuleLost     = "lost"
	RuleSpurious = "spurious"
	RuleMerged   = "merged"
	RuleSplit    = "split"
)

// Metrics exposes tracker counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	FramesProcessed       prometheus.Counter
	IdentitiesAllocated   prometheus.Counter
	Corrections           *prometheus.CounterVec
	AssignmentAmbiguities prometheus.Counter
	CorrectionConflicts   prometheus.Counter
	DiagnosticsFailures   prometheus.Counter
	BackgroundRecomputes  prometheus.Counter
	ActiveTargets         prometheus.Gauge
}

// NewMetrics registers tracker metrics on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mot",
			Name:      "frames_processed_total",
			Help:      "Total number of frames tracked",
		}),
		IdentitiesAllocated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mot",
			Name:      "identities_allocated_total",
			Help:      "Total number of identities allocated by the assigner",
		}),
		Corrections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mot",
			Name:      "corrections_total",
			Help:      "Total number of hindsight corrections by rule",
		}, []string{"rule"}),
		AssignmentAmbiguities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mot",
			Name:      "assignment_ambiguities_total",
			Help:      "Assignments resolved by the deterministic tie-break",
		}),
		CorrectionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mot",
			Name:      "correction_conflicts_total",
			Help:      "Hindsight corrections skipped because an earlier rule claimed the identity",
		}),
		DiagnosticsFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mot",
			Name:      "diagnostics_failures_total",
			Help:      "Failed diagnostics snapshot writes",
		}),
		BackgroundRecomputes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mot",
			Name:      "background_recomputes_total",
			Help:      "Background model recalculations",
		}),
		ActiveTargets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mot",
			Name:      "active_targets",
			Help:      "Number of targets in the most recent frame",
		}),
	}
}

func (m *Metrics) frameProcessed(targets int) {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
	m.ActiveTargets.Set(float64(targets))
}

func (m *Metrics) identitiesAllocated(n int) {
	if m == nil || n == 0 {
		return
	}
	m.IdentitiesAllocated.Add(float64(n))
}

func (m *Metrics) corrections(c Corrections) {
	if m == nil {
		return
	}
	for rule, n := range map[string]int{RuleLost: c.Lost, RuleSpurious: c.Spurious, RuleMerged: c.Merged, RuleSplit: c.Split} {
		if n > 0 {
			m.Corrections.WithLabelValues(rule).Add(float64(n))
		}
	}
	if c.Conflicts > 0 {
		m.CorrectionConflicts.Add(float64(c.Conflicts))
	}
}

func (m *Metrics) ambiguities(n int) {
	if m == nil || n == 0 {
		return
	}
	m.AssignmentAmbiguities.Add(float64(n))
}

func (m *Metrics) diagnosticsFailed() {
	if m == nil {
		return
	}
	m.DiagnosticsFailures.Inc()
}

func (m *Metrics) backgroundRecomputed() {
	if m == nil {
		return
	}
	m.BackgroundRecomputes.Inc()
}
