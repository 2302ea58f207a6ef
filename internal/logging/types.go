package logging

import (
	"time"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
)

// #region loggables
// Loggables is the allow-list of field names an ExperimentLog accepts.
// PerState keys hold one value per state index; Continuous keys append.
type Loggables struct {
	PerState   []string `json:"per_state" yaml:"per_state"`
	Continuous []string `json:"continuous" yaml:"continuous"`
}

// StateNumberKey is always the first per-state column.
const StateNumberKey = "state_number"

// DefaultLoggables returns the field set of the word-tagging paradigm.
func DefaultLoggables() Loggables {
	return Loggables{
		PerState: []string{
			StateNumberKey,
			"state",
			"next_state",
			"target_end",
			"state_start",
			"state_end",
			"trial_number",
			"block_number",
			"block_trial",
			"fixation_on",
			"stim_on",
			"iti_start",
			"trial_end",
			"block_end",
			"word1",
			"word2",
			"word1_freq",
			"word2_freq",
			"condition",
			"randomized",
			"trial_cond",
		},
		Continuous: []string{
			"words/word1",
			"words/word2",
		},
	}
}

// normalized puts state_number first and drops duplicates.
func (l Loggables) normalized() Loggables {
	out := Loggables{PerState: []string{StateNumberKey}}
	seen := map[string]bool{StateNumberKey: true}
	for _, k := range l.PerState {
		if !seen[k] {
			seen[k] = true
			out.PerState = append(out.PerState, k)
		}
	}
	seenCont := map[string]bool{}
	for _, k := range l.Continuous {
		if !seenCont[k] {
			seenCont[k] = true
			out.Continuous = append(out.Continuous, k)
		}
	}
	return out
}

// #endregion loggables

// #region record
// Record is one row of the per-state table. Fields holds every per-state key;
// keys never logged map to nil.
type Record struct {
	StateNumber int
	Fields      map[string]any
}

// Event is one appended value of a continuous key.
type Event struct {
	StateNumber int
	Key         string
	Seq         int
	Value       any
}

// Table is a rectangular view with named columns.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Column returns the values of the named column, or nil when absent.
func (t Table) Column(name string) []any {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// #endregion record

// #region session
// Session is a saved log: its allow-list, per-state records and continuous events.
type Session struct {
	ID        string
	Label     string
	CreatedAt time.Time
	Loggables Loggables
	Records   []Record
	Events    []Event
}

// SessionInfo summarizes a stored session.
type SessionInfo struct {
	ID        string
	Label     string
	CreatedAt time.Time
	States    int
	Events    int
}

// #endregion session

// #region pending
// Pending is a value that can only be resolved after the next refresh.
type Pending interface {
	Resolve() (any, error)
}

// Deferred resolves by calling the wrapped function at flush time.
type Deferred func() (any, error)

// Resolve calls d.
func (d Deferred) Resolve() (any, error) {
	return d()
}

// FlipStamp captures the clock at the moment the next refresh completes.
type FlipStamp struct {
	clock display.Clock
	fired bool
	at    float64
}

// NewFlipStamp arms a stamp on d's next refresh, read from clock.
func NewFlipStamp(d display.Display, clock display.Clock) *FlipStamp {
	s := &FlipStamp{clock: clock}
	d.RunOnNextRefresh(func() {
		s.at = clock.Now()
		s.fired = true
	})
	return s
}

// Resolve returns the stamped time. Resolving before the refresh is a lifecycle error.
func (s *FlipStamp) Resolve() (any, error) {
	if !s.fired {
		return nil, experr.Lifecyclef("flip stamp resolved before its refresh")
	}
	return s.at, nil
}

// #endregion pending
