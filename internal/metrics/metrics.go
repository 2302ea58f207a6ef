// Package metrics exposes refresh-loop timing as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "freqtag"

// Metrics holds the controller's collectors. A nil *Metrics records nothing.
type Metrics struct {
	// RefreshesTotal counts display refreshes.
	RefreshesTotal prometheus.Counter
	// DroppedFramesTotal counts refreshes that took more than 1.5 nominal intervals.
	DroppedFramesTotal prometheus.Counter
	// RefreshInterval observes the time between consecutive refreshes.
	RefreshInterval prometheus.Histogram
	// StatesTotal counts completed state visits. Labels: state
	StatesTotal *prometheus.CounterVec
	// StampsTotal counts refresh-stamped log entries. Labels: key
	StampsTotal *prometheus.CounterVec
	// TrialsTotal and BlocksTotal count completed trials and blocks.
	TrialsTotal prometheus.Counter
	BlocksTotal prometheus.Counter
	// Mode is 1 for the controller's current mode and 0 otherwise. Labels: mode
	Mode *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RefreshesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "refreshes_total",
			Help:      "Display refreshes performed",
		}),
		DroppedFramesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "dropped_frames_total",
			Help:      "Refreshes later than 1.5 nominal refresh intervals",
		}),
		RefreshInterval: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "refresh_interval_seconds",
			Help:      "Time between consecutive refreshes",
			Buckets:   []float64{0.004, 0.007, 0.0085, 0.0105, 0.0125, 0.015, 0.0175, 0.025, 0.034, 0.05, 0.1},
		}),
		StatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "states_total",
			Help:      "Completed state visits",
		}, []string{"state"}),
		StampsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "stamps_total",
			Help:      "Log entries stamped with a refresh time",
		}, []string{"key"}),
		TrialsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "trials_total",
			Help:      "Completed trials",
		}),
		BlocksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "blocks_total",
			Help:      "Completed blocks",
		}),
		Mode: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "mode",
			Help:      "1 for the controller's current mode",
		}, []string{"mode"}),
	}
}

// ObserveRefresh records a refresh at t given the previous refresh at prev and
// the nominal interval. prev < 0 means no previous refresh.
func (m *Metrics) ObserveRefresh(prev, t, nominal float64) {
	if m == nil {
		return
	}
	m.RefreshesTotal.Inc()
	if prev < 0 {
		return
	}
	dt := t - prev
	m.RefreshInterval.Observe(dt)
	if nominal > 0 && dt > 1.5*nominal {
		m.DroppedFramesTotal.Inc()
	}
}

// StateDone counts a completed visit of state.
func (m *Metrics) StateDone(state string) {
	if m == nil {
		return
	}
	m.StatesTotal.WithLabelValues(state).Inc()
}

// Stamped counts a refresh-stamped key.
func (m *Metrics) Stamped(key string) {
	if m == nil {
		return
	}
	m.StampsTotal.WithLabelValues(key).Inc()
}

// TrialDone counts a completed trial.
func (m *Metrics) TrialDone() {
	if m == nil {
		return
	}
	m.TrialsTotal.Inc()
}

// BlockDone counts a completed block.
func (m *Metrics) BlockDone() {
	if m == nil {
		return
	}
	m.BlocksTotal.Inc()
}

// SetMode sets the gauge for mode to 1 and every other known mode to 0.
func (m *Metrics) SetMode(mode string, all []string) {
	if m == nil {
		return
	}
	for _, other := range all {
		m.Mode.WithLabelValues(other).Set(0)
	}
	m.Mode.WithLabelValues(mode).Set(1)
}
