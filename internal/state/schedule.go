package state

import "math"

// #region schedule
// ComputeSchedule returns toggle times t0 + i/(2f) for every i with i/(2f) < horizon.
// Toggling at half-period spacing yields a square wave at f. Returns nil for f <= 0
// or a horizon that is not positive and finite.
func ComputeSchedule(t0, f, horizon float64) []float64 {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) || horizon <= 0 || math.IsNaN(horizon) || math.IsInf(horizon, 0) {
		return nil
	}
	halfPeriod := 1 / (2 * f)
	n := int(math.Ceil(horizon / halfPeriod))
	out := make([]float64, 0, n)
	for i := 0; ; i++ {
		offset := float64(i) * halfPeriod
		if offset >= horizon {
			break
		}
		out = append(out, t0+offset)
	}
	return out
}

// NearestFrequency returns the flicker frequency closest to target that a display
// refreshing at refreshRate can produce with whole frames per half-cycle.
func NearestFrequency(target, refreshRate float64) float64 {
	if target <= 0 || refreshRate <= 0 {
		return 0
	}
	mult := math.Round(refreshRate / (2 * target))
	if mult < 1 {
		mult = 1
	}
	return refreshRate / mult / 2
}

// #endregion schedule
