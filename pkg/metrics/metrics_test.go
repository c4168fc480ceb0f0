package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Workflow(t *testing.T) {
	m := New("careflow", prometheus.NewRegistry())

	m.Workflow("review", nil)
	m.Workflow("review", nil)
	m.Workflow("review", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkflowOperations.WithLabelValues("review", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowOperations.WithLabelValues("review", "error")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Workflow("submit", nil)
		m.Database("claim", nil)
		m.Redis("publish", errors.New("down"))
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New("careflow", prometheus.NewRegistry())
		New("careflow", prometheus.NewRegistry())
	})
}
