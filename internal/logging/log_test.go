package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
)

// #region helpers
func testLoggables() Loggables {
	return Loggables{
		PerState:   []string{"state", "state_start", "state_end", "trial_end"},
		Continuous: []string{"words/word1", "words/word2"},
	}
}

// #endregion helpers

// #region log-tests
func TestNew_StateNumberFirst(t *testing.T) {
	l := New(Loggables{PerState: []string{"state", StateNumberKey, "state"}})
	assert.Equal(t, []string{StateNumberKey, "state"}, l.Loggables().PerState)
	assert.NotEmpty(t, l.SessionID())
}

func TestLog_UnknownKey(t *testing.T) {
	l := New(testLoggables())

	for _, v := range []any{1.0, "x", nil, Deferred(func() (any, error) { return 1, nil })} {
		err := l.Log(0, "not_a_field", v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, experr.ErrConfig))
	}
	assert.Zero(t, l.Pending())
	assert.Zero(t, l.Len())
}

func TestLog_ImmediateAndOverwrite(t *testing.T) {
	l := New(testLoggables())
	require.NoError(t, l.Log(3, "state", "fixation"))
	require.NoError(t, l.Log(3, "state", "stim"))

	v, ok := l.Get(3, "state")
	require.True(t, ok)
	assert.Equal(t, "stim", v)

	n, _ := l.Get(3, StateNumberKey)
	assert.Equal(t, 3, n)
}

func TestLog_ContinuousAppends(t *testing.T) {
	l := New(testLoggables())
	require.NoError(t, l.Log(1, "words/word1", 0.5))
	require.NoError(t, l.Log(1, "words/word1", 0.625))
	require.NoError(t, l.Log(1, "words/word2", 0.5))

	assert.Equal(t, []any{0.5, 0.625}, l.Values(1, "words/word1"))

	events := l.Events()
	require.Len(t, events, 3)
	assert.Equal(t, Event{StateNumber: 1, Key: "words/word1", Seq: 1, Value: 0.625}, events[1])
	assert.Equal(t, "words/word2", events[2].Key)
}

func TestRecords_FixedSchema(t *testing.T) {
	l := New(testLoggables())
	require.NoError(t, l.Log(1, "state", "b"))
	require.NoError(t, l.Log(0, "state", "a"))

	recs := l.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].StateNumber)
	assert.Len(t, recs[0].Fields, 5)
	assert.Nil(t, recs[0].Fields["state_end"])
	assert.Equal(t, "b", recs[1].Fields["state"])
}

// #endregion log-tests

// #region pending-tests
func TestFlush_ResolvesInEnqueueOrder(t *testing.T) {
	l := New(testLoggables())
	var order []string
	mk := func(name string, v any) Deferred {
		return func() (any, error) {
			order = append(order, name)
			return v, nil
		}
	}
	require.NoError(t, l.Log(0, "words/word1", mk("a", 1.0)))
	require.NoError(t, l.Log(0, "words/word1", mk("b", 2.0)))
	require.NoError(t, l.Log(0, "state_start", mk("c", 3.0)))
	assert.Equal(t, 3, l.Pending())
	assert.Empty(t, order)

	_, ok := l.Get(0, "state_start")
	assert.False(t, ok)

	require.NoError(t, l.Flush())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []any{1.0, 2.0}, l.Values(0, "words/word1"))
	v, _ := l.Get(0, "state_start")
	assert.Equal(t, 3.0, v)
	assert.Zero(t, l.Pending())
}

func TestFlush_ClearsQueueOnFailure(t *testing.T) {
	l := New(testLoggables())
	boom := errors.New("boom")
	require.NoError(t, l.Log(0, "state_start", Deferred(func() (any, error) { return nil, boom })))
	require.NoError(t, l.Log(0, "state_end", Deferred(func() (any, error) { return 2.0, nil })))

	err := l.Flush()
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, l.Pending())

	v, _ := l.Get(0, "state_end")
	assert.Equal(t, 2.0, v)
	require.NoError(t, l.Flush())
}

func TestFlipStamp_ReadsRefreshTime(t *testing.T) {
	clock := display.NewVirtualClock(10)
	v, err := display.NewVirtualInterval(clock, 0.25)
	require.NoError(t, err)

	l := New(testLoggables())
	stamp := NewFlipStamp(v, clock)

	_, err = stamp.Resolve()
	assert.ErrorIs(t, err, experr.ErrLifecycle)

	require.NoError(t, l.Log(0, "state_start", stamp))
	clock.Advance(0.1) // time passing before the refresh is not what gets logged
	_, err = v.Refresh()
	require.NoError(t, err)
	require.NoError(t, l.Flush())

	got, _ := l.Get(0, "state_start")
	assert.InDelta(t, 10.35, got.(float64), 1e-12)
}

func TestFlipStamp_UnfiredFailsFlush(t *testing.T) {
	clock := display.NewVirtualClock(0)
	v, _ := display.NewVirtual(clock, 60)
	l := New(testLoggables())
	require.NoError(t, l.Log(0, "state_end", NewFlipStamp(v, clock)))

	assert.ErrorIs(t, l.Flush(), experr.ErrLifecycle)
	assert.Zero(t, l.Pending())
}

// #endregion pending-tests

// #region table-tests
func TestStatesTable(t *testing.T) {
	l := New(testLoggables())
	require.NoError(t, l.Log(0, "state", "a"))
	require.NoError(t, l.Log(1, "state", "b"))
	require.NoError(t, l.Log(1, "trial_end", true))

	tbl := l.StatesTable()
	assert.Equal(t, []string{StateNumberKey, "state", "state_start", "state_end", "trial_end"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []any{"a", "b"}, tbl.Column("state"))
	assert.Equal(t, []any{nil, true}, tbl.Column("trial_end"))
	assert.Nil(t, tbl.Column("missing"))
}

func TestContinuousTable(t *testing.T) {
	l := New(Loggables{Continuous: []string{"words/word1", "mask"}})
	require.NoError(t, l.Log(2, "words/word1", 1.5))
	require.NoError(t, l.Log(2, "mask", 1.75))

	tbl := l.ContinuousTable()
	assert.Equal(t, []string{"state_index", "value", "key_0", "key_1"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []any{2, 1.5, "words", "word1"}, tbl.Rows[0])
	assert.Equal(t, []any{2, 1.75, "mask", nil}, tbl.Rows[1])
}

// #endregion table-tests
