package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtual_RefreshAdvancesClock(t *testing.T) {
	clock := NewVirtualClock(0)
	v, err := NewVirtualInterval(clock, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, v.PredictedNextRefresh(clock), 1e-12)

	ts, err := v.Refresh()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ts, 1e-12)
	assert.Equal(t, 1, v.Refreshes())
}

func TestVirtual_DroppedFrames(t *testing.T) {
	clock := NewVirtualClock(0)
	v, err := NewVirtualInterval(clock, 1, WithDroppedFrames(3))
	require.NoError(t, err)

	var last float64
	for i := 0; i < 3; i++ {
		last, _ = v.Refresh()
	}
	// third refresh takes two intervals
	assert.InDelta(t, 4.0, last, 1e-12)
	assert.Equal(t, 1, v.Dropped())
}

func TestVirtual_RunOnNextRefreshFiresOnce(t *testing.T) {
	clock := NewVirtualClock(0)
	v, _ := NewVirtual(clock, 60)

	var stamps []float64
	v.RunOnNextRefresh(func() { stamps = append(stamps, clock.Now()) })
	v.Refresh()
	v.Refresh()

	require.Len(t, stamps, 1)
	assert.InDelta(t, 1.0/60, stamps[0], 1e-12)
}

func TestVirtual_TransitionsCountChangesOnly(t *testing.T) {
	v, _ := NewVirtual(NewVirtualClock(0), 60)
	e := NewElement("dot", nil)

	v.SetVisible(e, true)
	v.SetVisible(e, true)
	v.SetVisible(e, false)

	assert.Equal(t, 2, v.Transitions("dot"))
	assert.False(t, v.Visible("dot"))
}

func TestNewVirtual_RejectsNonPositiveRate(t *testing.T) {
	_, err := NewVirtual(NewVirtualClock(0), 0)
	assert.Error(t, err)
}

func TestVirtual_RealtimePacing(t *testing.T) {
	clock := NewVirtualClock(0)
	v, err := NewVirtual(clock, 100, WithRealtime())
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := v.Refresh()
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
	assert.InDelta(t, 0.05, clock.Now(), 1e-9)
}
