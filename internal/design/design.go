// Package design turns a YAML experiment definition into the state table,
// controller config and trigger wiring of a frequency-tagging run.
package design

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/controller"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/state"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/stim"
)

// #region ids
// State ids of the paradigm.
const (
	StateFixation   state.ID = "fixation"
	StateStimulus   state.ID = "stimulus"
	StateQuery      state.ID = "query"
	StateInterTrial state.ID = "intertrial"
)

// Element paths.
var (
	PathWord1  = stim.NewPath("words", "word1")
	PathWord2  = stim.NewPath("words", "word2")
	PathFixDot = stim.NewPath("shapes", "fixdot")
	PathQuery  = stim.NewPath("text", "query")
	PathBreak  = stim.NewPath("text", "break")
)

// #endregion ids

// #region experiment
// ElementFactory builds the drawable for one element. name is unique across states.
type ElementFactory func(name string, args stim.Args) (display.Drawable, error)

// Option configures Build.
type Option func(*Experiment)

// WithElementFactory replaces the default factory, which makes display.Element values.
func WithElementFactory(f ElementFactory) Option {
	return func(e *Experiment) {
		e.newElement = f
	}
}

// Experiment is a built design: its states plus the trial cursor they share.
type Experiment struct {
	Design     *Design
	States     map[state.ID]state.State
	Fixation   *state.FlickerStimState
	Stimulus   *state.FlickerStimState
	Query      *state.FlickerStimState // nil when the query probability is zero
	InterTrial *state.MarkovState
	Pause      *state.FlickerStimState

	rng        *rand.Rand
	newElement ElementFactory
	order      []int
	pos        int
	queryWord  string
	truth      bool
	logger     *log.Logger
}

// Build validates des and creates every state on d.
func Build(des *Design, d display.Display, opts ...Option) (*Experiment, error) {
	if err := des.Validate(); err != nil {
		return nil, err
	}
	e := &Experiment{
		Design: des,
		States: make(map[state.ID]state.State),
		rng:    rand.New(rand.NewPCG(des.Seed, des.Seed^0x9e3779b97f4a7c15)),
		newElement: func(name string, args stim.Args) (display.Drawable, error) {
			return display.NewElement(name, args), nil
		},
		logger: logger.NewComponent("design"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.order = make([]int, len(des.Trials))
	for i := range e.order {
		e.order[i] = i
	}
	if des.Shuffle {
		e.shuffle()
	}

	steps := []func(display.Display) error{e.buildFixation, e.buildStimulus, e.buildQuery, e.buildInterTrial, e.buildPause}
	for _, step := range steps {
		if err := step(d); err != nil {
			return nil, err
		}
	}
	e.logger.Info("design built", "name", des.Name, "paradigm", des.Paradigm,
		"trials", len(des.Trials), "blocks", des.Blocks, "query_p", des.Query.Probability)
	return e, nil
}

// #endregion experiment

// #region states
func (e *Experiment) stimulus(d display.Display, prefix string, paths ...stim.Path) *stim.StatefulStim {
	constructors := make(map[stim.Path]stim.Factory, len(paths))
	for _, p := range paths {
		name := prefix + ":" + p.String()
		constructors[p] = func(_ display.Display, args stim.Args) (display.Drawable, error) {
			return e.newElement(name, args)
		}
	}
	return stim.New(d, constructors)
}

func (e *Experiment) buildFixation(d display.Display) error {
	var fix *state.FlickerStimState
	mark := state.Call("mark_fixation", func(float64, []any, map[string]any) error {
		fix.QueueLog("fixation_on")
		return nil
	})
	fix, err := state.NewFlickerStimState(
		state.To(StateStimulus),
		state.Fixed(e.Design.Fixation.Duration),
		e.stimulus(d, string(StateFixation), PathFixDot),
		map[stim.Path]float64{PathFixDot: 0},
		state.WithRefreshRate(e.Design.RefreshRate),
		state.WithStartCalls(mark),
	)
	if err != nil {
		return err
	}
	e.Fixation = fix
	e.States[StateFixation] = fix
	return nil
}

func (e *Experiment) buildStimulus(d display.Display) error {
	paths := []stim.Path{PathWord1, PathFixDot}
	if e.Design.Paradigm == TwoWord {
		paths = []stim.Path{PathWord1, PathWord2, PathFixDot}
	}
	next := state.To(StateInterTrial)
	if p := e.Design.Query.Probability; p > 0 {
		next = state.Choice([]state.ID{StateQuery, StateInterTrial}, func() int {
			if e.rng.Float64() < p {
				return 0
			}
			return 1
		})
	}

	var st *state.FlickerStimState
	prepare := state.Call("prepare_trial", func(float64, []any, map[string]any) error {
		row := e.Current()
		args := map[stim.Path]stim.Args{
			PathWord1:  {"text": row.Word1},
			PathFixDot: {},
		}
		if err := st.SetFrequency(PathWord1, row.Word1Freq); err != nil {
			return err
		}
		if e.Design.Paradigm == TwoWord {
			args[PathWord2] = stim.Args{"text": row.Word2}
			if err := st.SetFrequency(PathWord2, row.Word2Freq); err != nil {
				return err
			}
		}
		st.SetConstructorArgs(args)
		st.QueueLog("stim_on")
		return nil
	})
	freqs := make(map[stim.Path]float64, len(paths))
	for _, p := range paths {
		freqs[p] = 0
	}
	st, err := state.NewFlickerStimState(
		next,
		state.Fixed(e.Design.Stimulus.Duration),
		e.stimulus(d, string(StateStimulus), paths...),
		freqs,
		state.WithRefreshRate(e.Design.RefreshRate),
		state.WithStartCalls(prepare),
	)
	if err != nil {
		return err
	}
	e.Stimulus = st
	e.States[StateStimulus] = st
	return nil
}

func (e *Experiment) buildQuery(d display.Display) error {
	if e.Design.Query.Probability <= 0 {
		return nil
	}
	var q *state.FlickerStimState
	pick := state.Call("pick_query", func(float64, []any, map[string]any) error {
		e.pickQuery()
		q.SetConstructorArgs(map[stim.Path]stim.Args{PathQuery: {"text": e.queryWord}})
		q.QueueLog("query_on")
		return nil
	})
	q, err := state.NewFlickerStimState(
		state.To(StateInterTrial),
		state.Fixed(e.Design.Query.Duration),
		e.stimulus(d, string(StateQuery), PathQuery),
		map[stim.Path]float64{PathQuery: 0},
		state.WithRefreshRate(e.Design.RefreshRate),
		state.WithStartCalls(pick),
	)
	if err != nil {
		return err
	}
	e.Query = q
	e.States[StateQuery] = q
	return nil
}

func (e *Experiment) buildInterTrial(display.Display) error {
	lo, hi := e.Design.InterTrial.Min, e.Design.InterTrial.Max
	iti, err := state.NewMarkovState(state.To(StateFixation), state.Dynamic(func() float64 {
		return lo + e.rng.Float64()*(hi-lo)
	}))
	if err != nil {
		return err
	}
	iti.OnStart(state.Call("mark_iti", func(float64, []any, map[string]any) error {
		iti.QueueLog("iti_start")
		return nil
	}))
	e.InterTrial = iti
	e.States[StateInterTrial] = iti
	return nil
}

func (e *Experiment) buildPause(d display.Display) error {
	p, err := state.NewFlickerStimState(
		state.To(state.Pause),
		state.Fixed(math.Inf(1)),
		e.stimulus(d, string(state.Pause), PathBreak),
		map[stim.Path]float64{PathBreak: 0},
		state.WithRefreshRate(e.Design.RefreshRate),
		state.WithConstructorArgs(map[stim.Path]stim.Args{PathBreak: {"text": e.Design.PauseText}}),
	)
	if err != nil {
		return err
	}
	e.Pause = p
	e.States[state.Pause] = p
	return nil
}

// #endregion states

// #region trials
// Current is the trial row the next stimulus state presents.
func (e *Experiment) Current() Trial {
	return e.Design.Trials[e.order[e.pos%len(e.order)]]
}

// TrialIndex is the row index of Current in the design's trial list.
func (e *Experiment) TrialIndex() int {
	return e.order[e.pos%len(e.order)]
}

// Order is the block's presentation order as row indices.
func (e *Experiment) Order() []int {
	return append([]int(nil), e.order...)
}

// QueryWord is the word shown by the last query.
func (e *Experiment) QueryWord() string { return e.queryWord }

// Truth reports whether the last query word appeared in its trial.
func (e *Experiment) Truth() bool { return e.truth }

func (e *Experiment) advance(float64, []any, map[string]any) error {
	e.pos++
	return nil
}

func (e *Experiment) newBlock(float64, []any, map[string]any) error {
	e.pos = 0
	if e.Design.Shuffle {
		e.shuffle()
	}
	return nil
}

func (e *Experiment) shuffle() {
	e.rng.Shuffle(len(e.order), func(i, j int) { e.order[i], e.order[j] = e.order[j], e.order[i] })
}

// pickQuery shows a word from the current trial half of the time, otherwise a
// word from another trial. With no foreign words available the query is true.
func (e *Experiment) pickQuery() {
	own := e.Current().Words()
	seen := make(map[string]bool, len(own))
	for _, w := range own {
		seen[w] = true
	}
	var foreign []string
	for _, t := range e.Design.Trials {
		for _, w := range t.Words() {
			if !seen[w] {
				seen[w] = true
				foreign = append(foreign, w)
			}
		}
	}
	sort.Strings(foreign)

	if len(foreign) == 0 || e.rng.Float64() < 0.5 {
		e.truth = true
		e.queryWord = own[e.rng.IntN(len(own))]
		return
	}
	e.truth = false
	e.queryWord = foreign[e.rng.IntN(len(foreign))]
}

// #endregion trials

// #region controller-config
// Config is the controller config for the design: one trial per row, ending at the ITI.
func (e *Experiment) Config() controller.Config {
	cfg := controller.DefaultConfig()
	cfg.Start = StateFixation
	cfg.TrialEnd = StateInterTrial
	cfg.Blocks = e.Design.Blocks
	cfg.TrialsPerBlock = len(e.Design.Trials)
	cfg.RefreshRate = e.Design.RefreshRate
	return cfg
}

// Loggables is the default field set plus the query fields.
func (e *Experiment) Loggables() logging.Loggables {
	l := logging.DefaultLoggables()
	l.PerState = append(l.PerState, "query_on", "query_word", "truth")
	return l
}

// #endregion controller-config
