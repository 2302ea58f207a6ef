package audit

// #region audit-config
// AuditConfig holds timing thresholds for a recorded session.
type AuditConfig struct {
	RefreshRate        float64 // nominal Hz, converts seconds to frames
	MaxOvershootFrames float64 // reject if a state ends later than its target by more than this
	MaxFrequencyError  float64 // reject if measured flicker deviates more than this, relative
	// FrequencyFields maps a continuous key to the per-state field holding its tag frequency.
	FrequencyFields map[string]string
}

// DefaultAuditConfig returns thresholds for a 60 Hz display and the word paradigm.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		RefreshRate:        60,
		MaxOvershootFrames: 1.0,
		MaxFrequencyError:  0.05,
		FrequencyFields: map[string]string{
			"words/word1": "word1_freq",
			"words/word2": "word2_freq",
		},
	}
}

// #endregion audit-config

// #region audit-metric
// AuditMetric captures a single check result.
type AuditMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion audit-metric

// #region audit-result
// AuditResult is the output of a session audit.
type AuditResult struct {
	Passed  bool
	Metrics []AuditMetric
	Reason  string
	States  int
}

// Metric looks a metric up by name.
func (r AuditResult) Metric(name string) (AuditMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return AuditMetric{}, false
}

// #endregion audit-result
