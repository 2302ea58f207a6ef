package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRefresh(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRefresh(-1, 0.0, 1.0/60)
	m.ObserveRefresh(0, 1.0/60, 1.0/60)
	m.ObserveRefresh(1.0/60, 3.0/60, 1.0/60)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RefreshesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedFramesTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RefreshInterval))
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.StateDone("fixation")
	m.StateDone("fixation")
	m.Stamped("stim_on")
	m.TrialDone()
	m.BlockDone()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StatesTotal.WithLabelValues("fixation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StampsTotal.WithLabelValues("stim_on")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrialsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksTotal))
}

func TestSetMode(t *testing.T) {
	m := New(prometheus.NewRegistry())
	all := []string{"idle", "running", "paused"}
	m.SetMode("running", all)
	m.SetMode("paused", all)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.Mode.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mode.WithLabelValues("paused")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRefresh(0, 1, 1)
		m.StateDone("x")
		m.Stamped("k")
		m.TrialDone()
		m.BlockDone()
		m.SetMode("idle", nil)
	})
}
