package audit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/controller"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/design"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
)

func record(n int, start, target, end any, freq any) logging.Record {
	return logging.Record{StateNumber: n, Fields: map[string]any{
		"state_start": start,
		"target_end":  target,
		"state_end":   end,
		"word1_freq":  freq,
	}}
}

func events(n int, key string, ts ...float64) []logging.Event {
	out := make([]logging.Event, len(ts))
	for i, t := range ts {
		out[i] = logging.Event{StateNumber: n, Key: key, Seq: i, Value: t}
	}
	return out
}

func TestAuditPassesOnCleanSession(t *testing.T) {
	s := &logging.Session{
		Records: []logging.Record{
			record(0, 0.0, 1.0, 1.01, 10.0),
			record(1, 1.01, math.Inf(1), nil, nil), // cut by quit
		},
		Events: events(0, "words/word1", 0, 0.05, 0.10, 0.15, 0.20, 0.25),
	}

	result := NewHarness(DefaultAuditConfig()).Run(s)

	assert.True(t, result.Passed, result.Reason)
	assert.Equal(t, 2, result.States)
	m, ok := result.Metric("flicker_words/word1_error")
	require.True(t, ok)
	assert.InDelta(t, 0, m.Value, 1e-9)
	late, ok := result.Metric("late_toggles")
	require.True(t, ok)
	assert.Equal(t, 0.0, late.Value)
}

func TestAuditFailsOnOvershoot(t *testing.T) {
	s := &logging.Session{Records: []logging.Record{record(0, 0.0, 1.0, 1.05, nil), record(1, 1.05, 2.0, 2.0, nil)}}

	result := NewHarness(DefaultAuditConfig()).Run(s)

	assert.False(t, result.Passed)
	m, _ := result.Metric("max_overshoot_frames")
	assert.InDelta(t, 3, m.Value, 1e-6)
	assert.False(t, m.Pass)
}

func TestAuditFailsOnWrongFrequency(t *testing.T) {
	// tagged at 10 Hz, toggled every 1/15 s: 7.5 Hz
	s := &logging.Session{
		Records: []logging.Record{record(0, 0.0, 1.0, 1.0, 10.0)},
		Events:  events(0, "words/word1", 0, 1.0/15, 2.0/15, 3.0/15, 4.0/15, 0.3),
	}

	result := NewHarness(DefaultAuditConfig()).Run(s)

	assert.False(t, result.Passed)
	m, _ := result.Metric("flicker_words/word1_error")
	assert.InDelta(t, 0.25, m.Value, 1e-6)
	assert.Contains(t, result.Reason, "words/word1")
}

func TestAuditFailsOnMissingStamps(t *testing.T) {
	s := &logging.Session{Records: []logging.Record{record(0, nil, 1.0, 1.0, nil), record(1, 1.0, 2.0, 2.0, nil)}}

	result := NewHarness(DefaultAuditConfig()).Run(s)

	assert.False(t, result.Passed)
	m, _ := result.Metric("missing_stamps")
	assert.Equal(t, 1.0, m.Value)
}

func TestAuditCountsLateToggles(t *testing.T) {
	// 10 Hz with one toggle two frames late; informational only
	s := &logging.Session{
		Records: []logging.Record{record(0, 0.0, 1.0, 1.0, 10.0)},
		Events:  events(0, "words/word1", 0, 0.05, 0.10, 0.15+2.0/60, 0.20+2.0/60, 0.3),
	}
	cfg := DefaultAuditConfig()
	cfg.MaxFrequencyError = 1

	result := NewHarness(cfg).Run(s)

	assert.True(t, result.Passed, result.Reason)
	m, _ := result.Metric("late_toggles")
	assert.Equal(t, 1.0, m.Value)
	assert.False(t, m.Pass)
}

func TestAuditOfSimulatedRun(t *testing.T) {
	des := design.DefaultDesign()
	des.Query.Probability = 0
	clock := display.NewVirtualClock(0)
	v, err := display.NewVirtual(clock, des.RefreshRate)
	require.NoError(t, err)
	exp, err := design.Build(des, v)
	require.NoError(t, err)
	l := logging.New(exp.Loggables())
	c, err := exp.NewController(v, clock, l, nil, nil, controller.WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, c.RunExperiment(context.Background()))

	result := NewHarness(DefaultAuditConfig()).Run(l.Snapshot())

	assert.True(t, result.Passed, result.Reason)
	m, ok := result.Metric("flicker_words/word2_error")
	require.True(t, ok)
	assert.Less(t, m.Value, 0.01)
}
