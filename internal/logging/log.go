package logging

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
)

// #region experiment-log
type queued struct {
	index int
	key   string
	value Pending
}

// ExperimentLog stores per-state scalar fields and continuous event sequences,
// keyed by the controller's state index.
type ExperimentLog struct {
	id         string
	label      string
	created    time.Time
	loggables  Loggables
	perState   map[string]bool
	continuous map[string]bool

	records map[int]map[string]any
	events  map[int]map[string][]any
	pending []queued
}

// New creates an empty log accepting the keys in loggables.
func New(loggables Loggables) *ExperimentLog {
	l := &ExperimentLog{
		id:         uuid.New().String(),
		created:    time.Now().UTC(),
		loggables:  loggables.normalized(),
		perState:   make(map[string]bool),
		continuous: make(map[string]bool),
		records:    make(map[int]map[string]any),
		events:     make(map[int]map[string][]any),
	}
	for _, k := range l.loggables.PerState {
		l.perState[k] = true
	}
	for _, k := range l.loggables.Continuous {
		l.continuous[k] = true
	}
	return l
}

// SessionID identifies this log in a Store.
func (l *ExperimentLog) SessionID() string {
	return l.id
}

// SetLabel attaches a free-form session label (participant, run).
func (l *ExperimentLog) SetLabel(label string) {
	l.label = label
}

// Loggables returns the normalized allow-list.
func (l *ExperimentLog) Loggables() Loggables {
	return Loggables{
		PerState:   append([]string(nil), l.loggables.PerState...),
		Continuous: append([]string(nil), l.loggables.Continuous...),
	}
}

// Accepts reports whether key is a per-state or continuous field.
func (l *ExperimentLog) Accepts(key string) bool {
	return l.perState[key] || l.continuous[key]
}

// #endregion experiment-log

// #region log
// Log stores value under key for state index. Pending values are queued until Flush.
func (l *ExperimentLog) Log(index int, key string, value any) error {
	if !l.Accepts(key) {
		return experr.Configf("key %q not in loggables", key)
	}
	l.touch(index)
	if p, ok := value.(Pending); ok {
		l.pending = append(l.pending, queued{index: index, key: key, value: p})
		return nil
	}
	l.store(index, key, value)
	return nil
}

func (l *ExperimentLog) touch(index int) {
	if _, ok := l.records[index]; !ok {
		l.records[index] = map[string]any{StateNumberKey: index}
	}
	if _, ok := l.events[index]; !ok {
		l.events[index] = make(map[string][]any)
	}
}

func (l *ExperimentLog) store(index int, key string, value any) {
	if l.perState[key] {
		l.records[index][key] = value
		return
	}
	l.events[index][key] = append(l.events[index][key], value)
}

// Flush resolves queued values in enqueue order. The queue is always emptied;
// values that fail to resolve are dropped and their errors returned together.
func (l *ExperimentLog) Flush() error {
	if len(l.pending) == 0 {
		return nil
	}
	batch := l.pending
	l.pending = nil

	var errs []error
	for _, q := range batch {
		v, err := q.value.Resolve()
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %q for state %d: %w", q.key, q.index, err))
			continue
		}
		l.store(q.index, q.key, v)
	}
	return errors.Join(errs...)
}

// Pending returns how many values await the next Flush.
func (l *ExperimentLog) Pending() int {
	return len(l.pending)
}

// #endregion log

// #region read
// Get returns a stored per-state value.
func (l *ExperimentLog) Get(index int, key string) (any, bool) {
	rec, ok := l.records[index]
	if !ok {
		return nil, false
	}
	v, ok := rec[key]
	return v, ok
}

// Values returns the continuous values appended under key for state index.
func (l *ExperimentLog) Values(index int, key string) []any {
	return append([]any(nil), l.events[index][key]...)
}

// Len returns the number of state indices logged.
func (l *ExperimentLog) Len() int {
	return len(l.records)
}

// Records returns one record per state index in ascending order. Every per-state
// key is present; unset keys are nil.
func (l *ExperimentLog) Records() []Record {
	indices := make([]int, 0, len(l.records))
	for i := range l.records {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]Record, 0, len(indices))
	for _, i := range indices {
		fields := make(map[string]any, len(l.loggables.PerState))
		for _, k := range l.loggables.PerState {
			fields[k] = l.records[i][k]
		}
		out = append(out, Record{StateNumber: i, Fields: fields})
	}
	return out
}

// Events returns every continuous value ordered by state index, key, then append order.
func (l *ExperimentLog) Events() []Event {
	indices := make([]int, 0, len(l.events))
	for i := range l.events {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var out []Event
	for _, i := range indices {
		for _, k := range l.loggables.Continuous {
			for seq, v := range l.events[i][k] {
				out = append(out, Event{StateNumber: i, Key: k, Seq: seq, Value: v})
			}
		}
	}
	return out
}

// Snapshot copies the log into a Session.
func (l *ExperimentLog) Snapshot() *Session {
	return &Session{
		ID:        l.id,
		Label:     l.label,
		CreatedAt: l.created,
		Loggables: l.Loggables(),
		Records:   l.Records(),
		Events:    l.Events(),
	}
}

// StatesTable returns the per-state table, one row per state index.
func (l *ExperimentLog) StatesTable() Table {
	return l.Snapshot().StatesTable()
}

// ContinuousTable returns one row per continuous event.
func (l *ExperimentLog) ContinuousTable() Table {
	return l.Snapshot().ContinuousTable()
}

// #endregion read

// #region save
// Save writes the log to the SQLite database at path, replacing any earlier save
// of this session.
func (l *ExperimentLog) Save(path string) error {
	st, err := NewStore(path)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.SaveSession(l.Snapshot()); err != nil {
		return fmt.Errorf("save log: %w", err)
	}
	return nil
}

// #endregion save

// #region session-tables
// StatesTable returns the per-state table of a session.
func (s *Session) StatesTable() Table {
	t := Table{Columns: append([]string(nil), s.Loggables.PerState...)}
	for _, rec := range s.Records {
		row := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = rec.Fields[c]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ContinuousTable returns one row per event: state index, value, then the key's
// path segments padded to the deepest key.
func (s *Session) ContinuousTable() Table {
	depth := 0
	for _, k := range s.Loggables.Continuous {
		if d := len(splitKey(k)); d > depth {
			depth = d
		}
	}
	t := Table{Columns: []string{"state_index", "value"}}
	for i := 0; i < depth; i++ {
		t.Columns = append(t.Columns, fmt.Sprintf("key_%d", i))
	}
	for _, ev := range s.Events {
		row := make([]any, len(t.Columns))
		row[0] = ev.StateNumber
		row[1] = ev.Value
		for i, seg := range splitKey(ev.Key) {
			row[2+i] = seg
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// #endregion session-tables
