// Package audit checks the timing of a recorded session: how late states ended
// and how closely each flickering element kept its tag frequency.
package audit

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
)

// #region audit-harness
// Harness audits saved sessions.
type Harness struct {
	config AuditConfig
}

// NewHarness creates a harness with the given thresholds.
func NewHarness(config AuditConfig) *Harness {
	return &Harness{config: config}
}

// Run audits s. Late toggles are informational and never fail the audit.
func (h *Harness) Run(s *logging.Session) AuditResult {
	var metrics []AuditMetric
	passed := true
	var failReasons []string
	frame := 0.0
	if h.config.RefreshRate > 0 {
		frame = 1 / h.config.RefreshRate
	}

	// 1. Every started state has a start and end stamp, except a final state cut by quit
	missing := missingStamps(s.Records)
	missingPass := missing == 0
	metrics = append(metrics, AuditMetric{Name: "missing_stamps", Value: float64(missing), Pass: missingPass})
	if !missingPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("%d states lack start or end stamps", missing))
	}

	// 2. State end overshoot against target_end, in frames
	overshoot := maxOvershoot(s.Records)
	if frame > 0 {
		overshoot /= frame
	}
	overshootPass := overshoot <= h.config.MaxOvershootFrames
	metrics = append(metrics, AuditMetric{Name: "max_overshoot_frames", Value: overshoot, Pass: overshootPass})
	if !overshootPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("state overshoot %.2f frames exceeds %.2f", overshoot, h.config.MaxOvershootFrames))
	}

	// 3. Flicker frequency per tagged element
	late := 0
	for _, key := range sortedKeys(h.config.FrequencyFields) {
		relErr, lateToggles, n := h.flicker(s, key, h.config.FrequencyFields[key], frame)
		late += lateToggles
		if n == 0 {
			continue
		}
		pass := relErr <= h.config.MaxFrequencyError
		metrics = append(metrics, AuditMetric{Name: fmt.Sprintf("flicker_%s_error", key), Value: relErr, Pass: pass})
		if !pass {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("%s flicker off by %.1f%%", key, relErr*100))
		}
	}

	// 4. Toggles landing more than a frame after their half period: informational
	metrics = append(metrics, AuditMetric{Name: "late_toggles", Value: float64(late), Pass: late == 0})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("audit failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("audit failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}
	return AuditResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
		States:  len(s.Records),
	}
}

// flicker returns the worst relative frequency error of key over states whose
// record carries a positive frequency in field, the number of late toggles and
// how many states were measured.
func (h *Harness) flicker(s *logging.Session, key, field string, frame float64) (float64, int, int) {
	stamps := make(map[int][]float64)
	for _, ev := range s.Events {
		if ev.Key != key {
			continue
		}
		if v, ok := toFloat(ev.Value); ok {
			stamps[ev.StateNumber] = append(stamps[ev.StateNumber], v)
		}
	}

	worst, late, measured := 0.0, 0, 0
	for _, rec := range s.Records {
		want, ok := toFloat(rec.Fields[field])
		if !ok || want <= 0 {
			continue
		}
		ts := stamps[rec.StateNumber]
		// onset, toggles, offset: at least two toggles give one interval
		if len(ts) < 4 {
			continue
		}
		toggles := ts[1 : len(ts)-1]
		span := toggles[len(toggles)-1] - toggles[0]
		if span <= 0 {
			continue
		}
		got := float64(len(toggles)-1) / (2 * span)
		if e := math.Abs(got-want) / want; e > worst {
			worst = e
		}
		measured++

		if frame > 0 {
			half := 1 / (2 * want)
			for i := 1; i < len(toggles); i++ {
				if toggles[i]-toggles[i-1]-half > frame*(1-1e-6) {
					late++
				}
			}
		}
	}
	return worst, late, measured
}

// #endregion audit-harness

// #region helpers
func missingStamps(recs []logging.Record) int {
	n := 0
	for i, rec := range recs {
		_, hasStart := toFloat(rec.Fields["state_start"])
		_, hasEnd := toFloat(rec.Fields["state_end"])
		if !hasStart {
			n++
			continue
		}
		if !hasEnd && i != len(recs)-1 {
			n++
		}
	}
	return n
}

func maxOvershoot(recs []logging.Record) float64 {
	worst := 0.0
	for _, rec := range recs {
		target, ok := toFloat(rec.Fields["target_end"])
		if !ok || math.IsInf(target, 0) {
			continue
		}
		end, ok := toFloat(rec.Fields["state_end"])
		if !ok {
			continue
		}
		if d := end - target; d > worst {
			worst = d
		}
	}
	return worst
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion helpers
