package state

// #region markov-state
// MarkovState is a state with a fixed or probabilistic successor, a fixed or
// computed duration, and ordered start/update/end callbacks. One instance is
// reused on every visit.
type MarkovState struct {
	next     Next
	duration Duration

	StartCalls  []Callback
	UpdateCalls []Callback
	EndCalls    []Callback

	logQueue []string
}

// NewMarkovState validates next and dur and returns a state with no callbacks.
func NewMarkovState(next Next, dur Duration) (*MarkovState, error) {
	if err := next.validate(); err != nil {
		return nil, err
	}
	if err := dur.validate(); err != nil {
		return nil, err
	}
	return &MarkovState{next: next, duration: dur}, nil
}

// #endregion markov-state

// #region next-and-duration
// NextAndDuration picks the next state id and this visit's duration.
func (s *MarkovState) NextAndDuration() (ID, float64, error) {
	id, err := s.next.resolve()
	if err != nil {
		return None, 0, err
	}
	dur, err := s.duration.resolve()
	if err != nil {
		return None, 0, err
	}
	return id, dur, nil
}

// Candidates returns the declared next-state ids.
func (s *MarkovState) Candidates() []ID {
	return s.next.Candidates()
}

// #endregion next-and-duration

// #region lifecycle
// Start runs StartCalls with t.
func (s *MarkovState) Start(t float64) error {
	return InvokeAll(s.StartCalls, t)
}

// Update runs UpdateCalls with t.
func (s *MarkovState) Update(t float64) error {
	return InvokeAll(s.UpdateCalls, t)
}

// End runs EndCalls with t.
func (s *MarkovState) End(t float64) error {
	return InvokeAll(s.EndCalls, t)
}

// OnStart appends start callbacks.
func (s *MarkovState) OnStart(calls ...Callback) {
	s.StartCalls = append(s.StartCalls, calls...)
}

// OnUpdate appends update callbacks.
func (s *MarkovState) OnUpdate(calls ...Callback) {
	s.UpdateCalls = append(s.UpdateCalls, calls...)
}

// OnEnd appends end callbacks.
func (s *MarkovState) OnEnd(calls ...Callback) {
	s.EndCalls = append(s.EndCalls, calls...)
}

// #endregion lifecycle

// #region log-queue
// QueueLog marks field names to be stamped with the next refresh time.
func (s *MarkovState) QueueLog(keys ...string) {
	s.logQueue = append(s.logQueue, keys...)
}

// LogQueue returns the field names queued since the last refresh.
func (s *MarkovState) LogQueue() []string {
	out := make([]string, len(s.logQueue))
	copy(out, s.logQueue)
	return out
}

// ClearLogQueue drops queued field names. Called after every refresh.
func (s *MarkovState) ClearLogQueue() {
	s.logQueue = s.logQueue[:0]
}

// #endregion log-queue
