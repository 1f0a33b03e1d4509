package mot

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.frameProcessed(3)
	m.frameProcessed(2)
	m.identitiesAllocated(4)
	m.identitiesAllocated(0)
	m.corrections(Corrections{Lost: 2, Split: 1, Conflicts: 1})
	m.ambiguities(1)
	m.diagnosticsFailed()
	m.backgroundRecomputed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesProcessed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveTargets))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.IdentitiesAllocated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Corrections.WithLabelValues(RuleLost)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Corrections.WithLabelValues(RuleSplit)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Corrections.WithLabelValues(RuleMerged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorrectionConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssignmentAmbiguities))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiagnosticsFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackgroundRecomputes))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.frameProcessed(1)
		m.identitiesAllocated(1)
		m.corrections(Corrections{Lost: 1})
		m.ambiguities(1)
		m.diagnosticsFailed()
		m.backgroundRecomputed()
	})
}
