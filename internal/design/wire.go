package design

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/controller"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/state"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/trigger"
)

// #region new-controller
// NewController builds a controller for e and attaches loggables, the trial
// cursor and, when port is non-nil, triggers from table.
func (e *Experiment) NewController(d display.Display, clock display.Clock, l *logging.ExperimentLog, port trigger.Port, table *trigger.Table, opts ...controller.Option) (*controller.Controller, error) {
	c, err := controller.New(e.States, d, clock, l, e.Config(), opts...)
	if err != nil {
		return nil, fmt.Errorf("new controller: %w", err)
	}
	if err := e.Attach(c, port, table); err != nil {
		return nil, err
	}
	return c, nil
}

// Attach registers the trial cursor, the paradigm's loggables and triggers on c.
// A nil table falls back to trigger.DefaultTable.
func (e *Experiment) Attach(c *controller.Controller, port trigger.Port, table *trigger.Table) error {
	c.AddTrialCallback(state.Call("next_trial", e.advance))
	c.AddBlockCallback(state.Call("next_block", e.newBlock))

	if err := e.attachLoggables(c); err != nil {
		return err
	}
	if port == nil {
		return nil
	}
	if table == nil {
		table = trigger.DefaultTable()
	}
	return e.attachTriggers(c, port, table)
}

// #endregion new-controller

// #region loggables
func (e *Experiment) attachLoggables(c *controller.Controller) error {
	type entry struct {
		id state.ID
		l  controller.Loggable
	}
	entries := []entry{
		{StateStimulus, controller.Loggable{Key: "word1", Object: e, Attribute: []string{"Current", "Word1"}}},
		{StateStimulus, controller.Loggable{Key: "word1_freq", Object: e.Stimulus, Attribute: []string{"Frequencies", PathWord1.String()}}},
		{StateStimulus, controller.Loggable{Key: "condition", Object: e, Attribute: []string{"Current", "Condition"}}},
		{StateStimulus, controller.Loggable{Key: "randomized", Value: e.Design.Shuffle}},
	}
	if e.Design.Paradigm == TwoWord {
		entries = append(entries,
			entry{StateStimulus, controller.Loggable{Key: "word2", Object: e, Attribute: []string{"Current", "Word2"}}},
			entry{StateStimulus, controller.Loggable{Key: "word2_freq", Object: e.Stimulus, Attribute: []string{"Frequencies", PathWord2.String()}}},
		)
	}
	if e.Query != nil {
		entries = append(entries,
			entry{StateQuery, controller.Loggable{Key: "query_word", Object: e, Attribute: []string{"QueryWord"}}},
			entry{StateQuery, controller.Loggable{Key: "truth", Object: e, Attribute: []string{"Truth"}}},
		)
	}
	for _, en := range entries {
		if err := c.AddLoggable(en.id, controller.EventStart, en.l); err != nil {
			return fmt.Errorf("loggable %s: %w", en.l.Key, err)
		}
	}
	return nil
}

// #endregion loggables

// #region triggers
func (e *Experiment) attachTriggers(c *controller.Controller, port trigger.Port, table *trigger.Table) error {
	signal := func(name string) (state.Callback, error) {
		code, err := table.Code(name)
		if err != nil {
			return state.Callback{}, err
		}
		return state.Call("trigger_"+strings.ToLower(name), func(float64, []any, map[string]any) error {
			return port.Signal(code)
		}), nil
	}

	ids := make([]string, 0, len(e.States))
	for id := range e.States {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	stateEnd, err := signal(trigger.StateEnd)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := c.AddHook(state.ID(id), controller.EventEnd, stateEnd); err != nil {
			return err
		}
	}

	starts := map[state.ID]string{
		StateFixation:   trigger.Fixation,
		StateInterTrial: trigger.ITI,
		state.Pause:     trigger.Break,
	}
	for id, name := range starts {
		cb, err := signal(name)
		if err != nil {
			return err
		}
		if err := c.AddHook(id, controller.EventStart, cb); err != nil {
			return err
		}
	}

	trialEnd, err := signal(trigger.TrialEnd)
	if err != nil {
		return err
	}
	blockEnd, err := signal(trigger.BlockEnd)
	if err != nil {
		return err
	}
	c.AddTrialCallback(trialEnd)
	c.AddBlockCallback(blockEnd)

	if err := e.checkStimulusCodes(table); err != nil {
		return err
	}
	stimCode := state.Call("trigger_stimulus", func(float64, []any, map[string]any) error {
		code, err := e.stimulusCode(table)
		if err != nil {
			return err
		}
		return port.Signal(code)
	})
	if err := c.AddHook(StateStimulus, controller.EventStart, stimCode); err != nil {
		return err
	}

	if e.Query == nil {
		return nil
	}
	yes, err := table.Code(trigger.QueryTrue)
	if err != nil {
		return err
	}
	no, err := table.Code(trigger.QueryFalse)
	if err != nil {
		return err
	}
	return c.AddHook(StateQuery, controller.EventStart, state.Call("trigger_query", func(float64, []any, map[string]any) error {
		if e.truth {
			return port.Signal(yes)
		}
		return port.Signal(no)
	}))
}

// stimulusCode is the condition code of the current trial, e.g.
// TWOWORD.PHRASE.F1LEFT when word1 carries F1.
func (e *Experiment) stimulusCode(table *trigger.Table) (trigger.Code, error) {
	return e.trialCode(table, e.Current())
}

func (e *Experiment) trialCode(table *trigger.Table, t Trial) (trigger.Code, error) {
	side, err := e.Design.tagSide(t)
	if err != nil {
		return 0, err
	}
	group := conditions[e.Design.Paradigm][t.Condition]
	return table.Lookup(strings.ToUpper(string(e.Design.Paradigm)), group, side)
}

// checkStimulusCodes resolves every row's code once so a table missing a
// condition fails at wiring time.
func (e *Experiment) checkStimulusCodes(table *trigger.Table) error {
	for i, t := range e.Design.Trials {
		if _, err := e.trialCode(table, t); err != nil {
			return fmt.Errorf("trial %d trigger: %w", i, err)
		}
	}
	return nil
}

// #endregion triggers
