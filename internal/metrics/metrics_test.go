package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIndexOp("ingest", time.Now(), nil)
		m.TaskFinished("local", "success")
		m.InFlight("local", 1)
		m.PersistFailed("local")
		m.JobSubmitted("default")
		m.DataIntegrityWarning()
		m.SchedulerTriggered("job", "submitted")
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveIndexOp("query", time.Now(), nil)
	m.ObserveIndexOp("query", time.Now(), errors.New("boom"))
	m.TaskFinished("local", "failure")
	m.DataIntegrityWarning()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOperationsTotal.WithLabelValues("query", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOperationsTotal.WithLabelValues("query", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunnerTasksTotal.WithLabelValues("local", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DataIntegrityWarnings))
}

func TestMetrics_PrivateRegistries(t *testing.T) {
	// 两次创建不会因重复注册而panic
	assert.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}
