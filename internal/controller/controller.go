package controller

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/metrics"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/state"
)

// #region controller
// Controller sequences states against the display's refresh cycle and writes
// state metadata to an ExperimentLog. It is not safe for concurrent use.
type Controller struct {
	states  map[state.ID]state.State
	display display.Display
	clock   display.Clock
	log     *logging.ExperimentLog
	cfg     Config

	hooks      map[state.ID]map[Event][]state.Callback
	trialCalls []state.Callback
	blockCalls []state.Callback

	logger    *log.Logger
	metrics   *metrics.Metrics
	listeners []func(Mode)
	keys      KeyPoller
	quitKey   string
	pauseKey  string

	mode      Mode
	current   state.ID
	active    state.State
	next      state.ID
	resume    state.ID
	targetEnd float64

	stateNum   int
	trial      int
	block      int
	blockTrial int
	refreshes  int
	lastFlip   float64

	paused   bool
	quitting bool
	running  bool
	inState  bool
}

// New validates cfg against states and log and returns an idle controller.
// A "pause" state (next pause, infinite duration) is added when absent.
func New(states map[state.ID]state.State, d display.Display, clock display.Clock, l *logging.ExperimentLog, cfg Config, opts ...Option) (*Controller, error) {
	if d == nil || clock == nil || l == nil {
		return nil, experr.Configf("controller needs a display, a clock and a log")
	}
	if len(states) == 0 {
		return nil, experr.Configf("state table is empty")
	}
	if _, ok := states[cfg.Start]; !ok {
		return nil, experr.Configf("start state %q not in state table", cfg.Start)
	}
	if _, ok := states[cfg.TrialEnd]; !ok {
		return nil, experr.Configf("trial end state %q not in state table", cfg.TrialEnd)
	}
	if cfg.Blocks <= 0 || cfg.TrialsPerBlock <= 0 {
		return nil, experr.Configf("blocks and trials per block must be positive, got %d and %d", cfg.Blocks, cfg.TrialsPerBlock)
	}
	if cfg.RefreshRate < 0 {
		return nil, experr.Configf("refresh rate must not be negative, got %v", cfg.RefreshRate)
	}
	for _, key := range RequiredLoggables {
		if !l.Accepts(key) {
			return nil, experr.Configf("log does not accept controller field %q", key)
		}
	}

	c := &Controller{
		states:   make(map[state.ID]state.State, len(states)+1),
		display:  d,
		clock:    clock,
		log:      l,
		cfg:      cfg,
		hooks:    make(map[state.ID]map[Event][]state.Callback),
		logger:   logger.NewComponent("controller"),
		mode:     ModeIdle,
		current:  cfg.Start,
		next:     cfg.Start,
		lastFlip: -1,
	}
	for id, st := range states {
		if st == nil {
			return nil, experr.Configf("state %q is nil", id)
		}
		c.states[id] = st
	}
	if _, ok := c.states[state.Pause]; !ok {
		pause, err := state.NewMarkovState(state.To(state.Pause), state.Fixed(math.Inf(1)))
		if err != nil {
			return nil, fmt.Errorf("pause state: %w", err)
		}
		c.states[state.Pause] = pause
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.keys != nil {
		c.addHook(AllStates, EventUpdate, state.Call("poll_keys", c.pollKeys))
	}
	return c, nil
}

// #endregion controller

// #region run-state
// RunState makes id the current state and runs it to completion, or until a
// pause or quit is sampled.
func (c *Controller) RunState(ctx context.Context, id state.ID) error {
	if c.inState {
		return experr.Lifecyclef("state %q started while state %q is running", id, c.current)
	}
	st, ok := c.states[id]
	if !ok {
		return experr.Configf("unknown state %q", id)
	}
	c.current = id
	c.active = st
	return c.run(ctx, id, st)
}

// RerunCurrent runs the current state again. The stored active state must be
// the one the state table holds for the current id.
func (c *Controller) RerunCurrent(ctx context.Context) error {
	st, ok := c.states[c.current]
	if !ok || c.active == nil || st != c.active {
		return experr.Lifecyclef("current state %q does not match the active state", c.current)
	}
	return c.run(ctx, c.current, st)
}

func (c *Controller) run(ctx context.Context, id state.ID, st state.State) error {
	if c.inState {
		return experr.Lifecyclef("state %q started while another state is running", id)
	}
	c.inState = true
	defer func() { c.inState = false }()

	next, dur, err := st.NextAndDuration()
	if err != nil {
		return fmt.Errorf("state %s: %w", id, err)
	}
	c.next = next
	c.logger.Debug("state start", "state", id, "next", next, "dur", dur, "index", c.stateNum)

	// start
	if err := st.Start(c.display.PredictedNextRefresh(c.clock)); err != nil {
		return fmt.Errorf("start %s: %w", id, err)
	}
	flip, err := c.refresh(st)
	if err != nil {
		return fmt.Errorf("start %s: %w", id, err)
	}
	c.targetEnd = flip + dur
	if err := c.logStart(id, flip); err != nil {
		return err
	}
	if err := c.runHooks(id, EventStart, flip); err != nil {
		return err
	}

	// update
	for {
		t := c.display.PredictedNextRefresh(c.clock)
		if !(t < c.targetEnd) {
			break
		}
		if err := st.Update(t); err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		flip, err := c.refresh(st)
		if err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		if err := c.runHooks(id, EventUpdate, flip); err != nil {
			return err
		}
		if c.checkPause() {
			break
		}
		if ctx.Err() != nil {
			c.quitting = true
		}
		if c.quitting {
			c.logger.Info("quit during state", "state", id, "index", c.stateNum)
			return ctx.Err()
		}
	}

	// end
	if err := st.End(c.display.PredictedNextRefresh(c.clock)); err != nil {
		return fmt.Errorf("end %s: %w", id, err)
	}
	flip, err = c.refresh(st, "state_end")
	if err != nil {
		return fmt.Errorf("end %s: %w", id, err)
	}
	return c.runHooks(id, EventEnd, flip)
}

// refresh stamps the state's queued keys (and extra) with the upcoming refresh,
// refreshes, flushes the log and clears the state's queue.
func (c *Controller) refresh(st state.State, extra ...string) (float64, error) {
	keys := append(st.LogQueue(), extra...)
	for _, key := range keys {
		if err := c.log.Log(c.stateNum, key, logging.NewFlipStamp(c.display, c.clock)); err != nil {
			return 0, err
		}
		c.metrics.Stamped(key)
	}

	flip, err := c.display.Refresh()
	if err != nil {
		return 0, fmt.Errorf("refresh: %w", err)
	}
	c.refreshes++
	nominal := 0.0
	if c.cfg.RefreshRate > 0 {
		nominal = 1 / c.cfg.RefreshRate
	}
	c.metrics.ObserveRefresh(c.lastFlip, flip, nominal)
	c.lastFlip = flip

	flushErr := c.log.Flush()
	st.ClearLogQueue()
	if flushErr != nil {
		return flip, fmt.Errorf("flush: %w", flushErr)
	}
	return flip, nil
}

func (c *Controller) logStart(id state.ID, flip float64) error {
	fields := []struct {
		key   string
		value any
	}{
		{"state_start", flip},
		{"state", string(id)},
		{"next_state", string(c.next)},
		{"target_end", c.targetEnd},
		{"trial_number", c.trial},
	}
	for _, f := range fields {
		if err := c.log.Log(c.stateNum, f.key, f.value); err != nil {
			return fmt.Errorf("log %s: %w", f.key, err)
		}
	}
	return nil
}

// #endregion run-state

// #region pause
// checkPause reports whether the update loop should break to enter or leave pause.
func (c *Controller) checkPause() bool {
	if c.active == c.states[state.Pause] {
		if c.paused {
			return false
		}
		c.next = c.resume
		c.resume = state.None
		c.setMode(ModeRunning)
		c.logger.Info("resumed", "next", c.next)
		return true
	}
	if !c.paused {
		return false
	}
	c.resume = c.next
	c.next = state.Pause
	c.setMode(ModePaused)
	c.logger.Info("paused", "state", c.current, "resume", c.resume)
	return true
}

// TogglePause flips the pause flag. It takes effect at the next update tick.
func (c *Controller) TogglePause() {
	c.paused = !c.paused
}

// Quit requests a stop at the next update tick.
func (c *Controller) Quit() {
	c.quitting = true
}

func (c *Controller) pollKeys(_ float64, _ []any, _ map[string]any) error {
	for _, k := range c.keys.Pressed() {
		switch {
		case c.quitKey != "" && k == c.quitKey:
			c.Quit()
		case c.pauseKey != "" && k == c.pauseKey:
			c.TogglePause()
		}
	}
	return nil
}

// #endregion pause

// #region counters
// IncrementCounters closes the bookkeeping of the state just run and advances
// trial and block counters when it was the trial end state. Completing the last
// block sets Next to state.None.
func (c *Controller) IncrementCounters() error {
	old := c.stateNum
	c.stateNum++
	c.metrics.StateDone(string(c.current))

	if err := c.log.Log(old, "block_number", c.block); err != nil {
		return err
	}
	if err := c.log.Log(old, "block_trial", c.blockTrial); err != nil {
		return err
	}

	trialEnd := c.current == c.cfg.TrialEnd
	blockEnd := false
	if trialEnd {
		c.trial++
		c.blockTrial++
		c.metrics.TrialDone()
		if err := state.InvokeAll(c.trialCalls, c.lastFlip); err != nil {
			return fmt.Errorf("trial callbacks: %w", err)
		}
		if c.blockTrial == c.cfg.TrialsPerBlock {
			blockEnd = true
			c.block++
			c.blockTrial = 0
			c.metrics.BlockDone()
			c.logger.Info("block complete", "block", c.block, "trial", c.trial)
			if err := state.InvokeAll(c.blockCalls, c.lastFlip); err != nil {
				return fmt.Errorf("block callbacks: %w", err)
			}
			if c.block == c.cfg.Blocks {
				c.next = state.None
			}
		}
	}
	if err := c.log.Log(old, "trial_end", trialEnd); err != nil {
		return err
	}
	return c.log.Log(old, "block_end", blockEnd)
}

// #endregion counters

// #region run-experiment
// RunExperiment runs states from Config.Start until the last block completes or
// a quit is requested. A cancelled ctx acts as a quit and its error is returned.
func (c *Controller) RunExperiment(ctx context.Context) error {
	if c.running {
		return experr.Lifecyclef("experiment already running")
	}
	if c.mode == ModeFinished || c.mode == ModeQuitting {
		return experr.Lifecyclef("experiment already %s", c.mode)
	}
	c.running = true
	defer func() { c.running = false }()

	c.setMode(ModeRunning)
	c.logger.Info("experiment start", "start", c.cfg.Start, "blocks", c.cfg.Blocks, "trials_per_block", c.cfg.TrialsPerBlock)

	c.current = c.cfg.Start
	for {
		if err := c.RunState(ctx, c.current); err != nil {
			c.setMode(ModeQuitting)
			return err
		}
		if err := ctx.Err(); err != nil {
			c.quitting = true
			c.setMode(ModeQuitting)
			c.logger.Info("quit between states", "state", c.current, "index", c.stateNum)
			return err
		}
		if c.quitting {
			c.setMode(ModeQuitting)
			return nil
		}
		if err := c.IncrementCounters(); err != nil {
			c.setMode(ModeQuitting)
			return err
		}
		if c.next == state.None {
			c.setMode(ModeFinished)
			c.logger.Info("experiment finished", "states", c.stateNum, "refreshes", c.refreshes)
			return nil
		}
		c.current = c.next
	}
}

// #endregion run-experiment

// #region registration
// AddLoggable logs l.Key on event of st: a literal value, or an attribute read
// from l.Object when the hook runs.
func (c *Controller) AddLoggable(st state.ID, event Event, l Loggable) error {
	if !event.valid() {
		return experr.Configf("event must be start, update or end, got %q", event)
	}
	if _, ok := c.states[st]; !ok && st != AllStates {
		return experr.Configf("loggable for unknown state %q", st)
	}
	if !c.log.Accepts(l.Key) {
		return experr.Configf("key %q not in loggables", l.Key)
	}
	if l.Value != nil && l.Object != nil {
		return experr.Configf("loggable %q: cannot specify both value and object", l.Key)
	}
	if len(l.Attribute) > 0 && l.Object == nil {
		return experr.Configf("loggable %q: attribute given without an object", l.Key)
	}
	if l.Object != nil && len(l.Attribute) == 0 {
		return experr.Configf("loggable %q: object given without an attribute", l.Key)
	}

	if l.Object == nil {
		value := l.Value
		c.addHook(st, event, state.Call("log_"+l.Key, func(float64, []any, map[string]any) error {
			return c.log.Log(c.stateNum, l.Key, value)
		}))
		return nil
	}
	obj, path := l.Object, append([]string(nil), l.Attribute...)
	c.addHook(st, event, state.Call("log_"+l.Key, func(float64, []any, map[string]any) error {
		v, err := resolveAttribute(obj, path)
		if err != nil {
			return fmt.Errorf("loggable %q: %w", l.Key, err)
		}
		return c.log.Log(c.stateNum, l.Key, v)
	}))
	return nil
}

// AddHook runs cb with the refresh time after every event of st.
func (c *Controller) AddHook(st state.ID, event Event, cb state.Callback) error {
	if !event.valid() {
		return experr.Configf("event must be start, update or end, got %q", event)
	}
	if _, ok := c.states[st]; !ok && st != AllStates {
		return experr.Configf("hook for unknown state %q", st)
	}
	if cb.Fn == nil {
		return experr.Configf("hook %q has no function", cb.Name)
	}
	c.addHook(st, event, cb)
	return nil
}

// AddTrialCallback runs cb each time the trial end state completes.
func (c *Controller) AddTrialCallback(cb state.Callback) {
	c.trialCalls = append(c.trialCalls, cb)
}

// AddBlockCallback runs cb each time a block completes.
func (c *Controller) AddBlockCallback(cb state.Callback) {
	c.blockCalls = append(c.blockCalls, cb)
}

func (c *Controller) addHook(st state.ID, event Event, cb state.Callback) {
	if c.hooks[st] == nil {
		c.hooks[st] = make(map[Event][]state.Callback)
	}
	c.hooks[st][event] = append(c.hooks[st][event], cb)
}

func (c *Controller) runHooks(id state.ID, event Event, t float64) error {
	if err := state.InvokeAll(c.hooks[id][event], t); err != nil {
		return fmt.Errorf("%s hooks of %s: %w", event, id, err)
	}
	if id == AllStates {
		return nil
	}
	if err := state.InvokeAll(c.hooks[AllStates][event], t); err != nil {
		return fmt.Errorf("%s hooks of all states: %w", event, err)
	}
	return nil
}

// #endregion registration

// #region mode
func (c *Controller) setMode(m Mode) {
	if c.mode == m {
		return
	}
	c.mode = m
	names := make([]string, 0, len(Modes()))
	for _, mode := range Modes() {
		names = append(names, string(mode))
	}
	c.metrics.SetMode(string(m), names)
	for _, fn := range c.listeners {
		fn(m)
	}
}

// #endregion mode

// #region accessors
// Mode returns the execution mode.
func (c *Controller) Mode() Mode { return c.mode }

// Trial returns the number of completed trials.
func (c *Controller) Trial() int { return c.trial }

// Block returns the number of completed blocks.
func (c *Controller) Block() int { return c.block }

// BlockTrial returns completed trials in the current block.
func (c *Controller) BlockTrial() int { return c.blockTrial }

// StateNumber returns the log index of the current state.
func (c *Controller) StateNumber() int { return c.stateNum }

// Current returns the id of the current state.
func (c *Controller) Current() state.ID { return c.current }

// Next returns the planned next state; state.None after the last block.
func (c *Controller) Next() state.ID { return c.next }

// Paused reports the pause flag.
func (c *Controller) Paused() bool { return c.paused }

// Quitting reports the quit flag.
func (c *Controller) Quitting() bool { return c.quitting }

// Refreshes returns how many refreshes the controller performed.
func (c *Controller) Refreshes() int { return c.refreshes }

// TargetEnd returns the target end time of the current state.
func (c *Controller) TargetEnd() float64 { return c.targetEnd }

// Log returns the experiment log.
func (c *Controller) Log() *logging.ExperimentLog { return c.log }

// State returns the state registered under id.
func (c *Controller) State(id state.ID) (state.State, bool) {
	st, ok := c.states[id]
	return st, ok
}

// #endregion accessors
