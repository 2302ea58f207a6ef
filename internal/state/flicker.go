package state

import (
	"math"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/stim"
)

// #region defaults
const (
	// DefaultRefreshRate is assumed when no refresh rate is configured.
	DefaultRefreshRate = 60.0
	// DefaultHorizon is how far ahead toggle times are precomputed, in seconds.
	DefaultHorizon = 100.0

	jitterMargin = 1e-6
)

// #endregion defaults

// #region flicker-state
// FlickerStimState is a MarkovState that shows a StatefulStim for its duration and
// toggles each tagged element on a precomputed half-period schedule.
type FlickerStimState struct {
	*MarkovState

	Stim *stim.StatefulStim

	frequencies     map[stim.Path]float64
	constructorArgs map[stim.Path]stim.Args
	refreshRate     float64
	horizon         float64

	userStart  []Callback
	userUpdate []Callback
	userEnd    []Callback

	started   bool
	stimOn    float64
	schedules map[stim.Path][]float64
	consumed  map[stim.Path][]bool
	toggles   map[stim.Path]int
}

// FlickerOption configures a FlickerStimState.
type FlickerOption func(*FlickerStimState)

// WithConstructorArgs sets the per-element args passed to StatefulStim.Create.
// By default every declared element is created with empty args.
func WithConstructorArgs(args map[stim.Path]stim.Args) FlickerOption {
	return func(s *FlickerStimState) {
		s.constructorArgs = args
	}
}

// WithRefreshRate sets the display refresh rate used for the jitter tolerance.
func WithRefreshRate(hz float64) FlickerOption {
	return func(s *FlickerStimState) {
		s.refreshRate = hz
	}
}

// WithHorizon sets the schedule look-ahead in seconds.
func WithHorizon(seconds float64) FlickerOption {
	return func(s *FlickerStimState) {
		s.horizon = seconds
	}
}

// WithStartCalls adds callbacks that run before the stimulus is created.
func WithStartCalls(calls ...Callback) FlickerOption {
	return func(s *FlickerStimState) {
		s.userStart = append(s.userStart, calls...)
	}
}

// WithUpdateCalls adds callbacks that run before each flicker step.
func WithUpdateCalls(calls ...Callback) FlickerOption {
	return func(s *FlickerStimState) {
		s.userUpdate = append(s.userUpdate, calls...)
	}
}

// WithEndCalls adds callbacks that run before the stimulus is ended.
func WithEndCalls(calls ...Callback) FlickerOption {
	return func(s *FlickerStimState) {
		s.userEnd = append(s.userEnd, calls...)
	}
}

// NewFlickerStimState builds a flicker state. frequencies maps element paths to Hz;
// zero means the element is shown but never toggled.
func NewFlickerStimState(next Next, dur Duration, st *stim.StatefulStim, frequencies map[stim.Path]float64, opts ...FlickerOption) (*FlickerStimState, error) {
	if st == nil {
		return nil, experr.Configf("flicker state needs a stimulus")
	}
	base, err := NewMarkovState(next, dur)
	if err != nil {
		return nil, err
	}
	s := &FlickerStimState{
		MarkovState: base,
		Stim:        st,
		frequencies: make(map[stim.Path]float64, len(frequencies)),
		refreshRate: DefaultRefreshRate,
		horizon:     DefaultHorizon,
		schedules:   make(map[stim.Path][]float64),
		consumed:    make(map[stim.Path][]bool),
		toggles:     make(map[stim.Path]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.refreshRate <= 0 || math.IsNaN(s.refreshRate) {
		return nil, experr.Configf("refresh rate must be positive, got %v", s.refreshRate)
	}
	if s.horizon <= 0 || math.IsNaN(s.horizon) || math.IsInf(s.horizon, 0) {
		return nil, experr.Configf("flicker horizon must be positive and finite, got %v", s.horizon)
	}
	for p, f := range frequencies {
		if err := s.SetFrequency(p, f); err != nil {
			return nil, err
		}
	}
	if s.constructorArgs == nil {
		s.constructorArgs = make(map[stim.Path]stim.Args)
		for _, p := range st.Paths() {
			s.constructorArgs[p] = stim.Args{}
		}
	}

	s.OnStart(s.userStart...)
	s.OnStart(Call("create_stim", s.createStim), Call("compute_flicker", s.computeFlicker))
	s.OnUpdate(Call("check_started", s.checkStarted))
	s.OnUpdate(s.userUpdate...)
	s.OnUpdate(Call("update_stim", s.updateStim))
	s.OnEnd(Call("check_started", s.checkStarted))
	s.OnEnd(s.userEnd...)
	s.OnEnd(Call("end_stim", s.endStim))
	return s, nil
}

// #endregion flicker-state

// #region frequencies
// SetFrequency retags an element. Takes effect at the next Start.
func (s *FlickerStimState) SetFrequency(p stim.Path, hz float64) error {
	if math.IsNaN(hz) || math.IsInf(hz, 0) || hz < 0 {
		return experr.Configf("frequency for %q must be a non-negative number, got %v", p, hz)
	}
	known := false
	for _, declared := range s.Stim.Paths() {
		if declared == p {
			known = true
			break
		}
	}
	if !known {
		return experr.Configf("frequency given for unknown element %q", p)
	}
	s.frequencies[p] = hz
	return nil
}

// Frequency returns the tag frequency of p (0 when untagged).
func (s *FlickerStimState) Frequency(p stim.Path) float64 {
	return s.frequencies[p]
}

// Frequencies returns a copy of the tag map.
func (s *FlickerStimState) Frequencies() map[stim.Path]float64 {
	out := make(map[stim.Path]float64, len(s.frequencies))
	for p, f := range s.frequencies {
		out[p] = f
	}
	return out
}

// SetConstructorArgs replaces the args used at the next Start.
func (s *FlickerStimState) SetConstructorArgs(args map[stim.Path]stim.Args) {
	s.constructorArgs = args
}

// #endregion frequencies

// #region lifecycle-callbacks
// checkStarted runs ahead of user update and end callbacks.
func (s *FlickerStimState) checkStarted(_ float64, _ []any, _ map[string]any) error {
	if !s.started {
		return experr.Lifecyclef("flicker state used before start")
	}
	return nil
}

func (s *FlickerStimState) createStim(t float64, _ []any, _ map[string]any) error {
	if _, err := s.Stim.Create(s.constructorArgs); err != nil {
		return err
	}
	s.stimOn = t
	s.started = true
	return nil
}

func (s *FlickerStimState) computeFlicker(_ float64, _ []any, _ map[string]any) error {
	if !s.started {
		return experr.Lifecyclef("stimulus must be created before computing flicker")
	}
	s.schedules = make(map[stim.Path][]float64)
	s.consumed = make(map[stim.Path][]bool)
	s.toggles = make(map[stim.Path]int)

	for _, p := range s.Stim.Paths() {
		if _, live := s.Stim.Element(p); !live {
			continue
		}
		sched := ComputeSchedule(s.stimOn, s.frequencies[p], s.horizon)
		if len(sched) == 0 {
			continue
		}
		used := make([]bool, len(sched))
		used[0] = true
		s.schedules[p] = sched
		s.consumed[p] = used
		s.QueueLog(p.String())
	}
	return nil
}

func (s *FlickerStimState) updateStim(t float64, _ []any, _ map[string]any) error {
	if !s.started {
		return experr.Lifecyclef("flicker state updated before start")
	}

	tolerance := 1/(2*s.refreshRate) - jitterMargin
	requested := make(map[stim.Path]bool)
	for p, sched := range s.schedules {
		used := s.consumed[p]
		latest := -1
		for i, target := range sched {
			if used[i] {
				continue
			}
			if math.Abs(t-target) <= tolerance || t > target {
				latest = i
			}
		}
		if latest < 0 {
			continue
		}
		for i := 0; i <= latest; i++ {
			used[i] = true
		}
		requested[p] = !s.Stim.Visible(p)
		s.toggles[p]++
	}
	if len(requested) == 0 {
		return nil
	}

	changed, err := s.Stim.Update(requested)
	if err != nil {
		return err
	}
	for _, p := range changed {
		s.QueueLog(p.String())
	}
	return nil
}

func (s *FlickerStimState) endStim(_ float64, _ []any, _ map[string]any) error {
	if !s.started {
		return experr.Lifecyclef("flicker state ended before start")
	}
	for _, p := range stim.SortPaths(s.scheduledPaths()) {
		s.QueueLog(p.String())
	}
	s.Stim.End()
	s.started = false
	return nil
}

// #endregion lifecycle-callbacks

// #region accessors
// StimOn returns the predicted onset time of the current visit.
func (s *FlickerStimState) StimOn() float64 {
	return s.stimOn
}

// Schedule returns a copy of the toggle times for p in the current visit.
func (s *FlickerStimState) Schedule(p stim.Path) []float64 {
	out := make([]float64, len(s.schedules[p]))
	copy(out, s.schedules[p])
	return out
}

// Toggles returns how many toggles p received in the current visit.
func (s *FlickerStimState) Toggles(p stim.Path) int {
	return s.toggles[p]
}

// Pending returns how many scheduled toggles of p are still unconsumed.
func (s *FlickerStimState) Pending(p stim.Path) int {
	n := 0
	for _, used := range s.consumed[p] {
		if !used {
			n++
		}
	}
	return n
}

func (s *FlickerStimState) scheduledPaths() []stim.Path {
	out := make([]stim.Path, 0, len(s.schedules))
	for p := range s.schedules {
		out = append(out, p)
	}
	return out
}

// #endregion accessors
