package state

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
)

// #region id
// ID names a state in the controller's state table.
type ID string

// None is the "no next state" sentinel; the controller stops when next is None.
const None ID = ""

// Pause is the id of the pause pseudo-state.
const Pause ID = "pause"

// #endregion id

// #region callback
// Func is the signature of every lifecycle callback. t is the predicted refresh time
// for the lifecycle event (or the actual refresh time for controller hooks).
type Func func(t float64, args []any, kwargs map[string]any) error

// Callback is a named function with stored positional and keyword arguments.
type Callback struct {
	Name   string
	Fn     Func
	Args   []any
	Kwargs map[string]any
}

// Call builds a Callback from fn and optional stored positional arguments.
func Call(name string, fn Func, args ...any) Callback {
	return Callback{Name: name, Fn: fn, Args: args}
}

// Invoke dispatches the callback with t as the first argument.
func (c Callback) Invoke(t float64) error {
	if c.Fn == nil {
		return experr.Configf("callback %q has no function", c.Name)
	}
	if err := c.Fn(t, c.Args, c.Kwargs); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

// InvokeAll runs callbacks in order, stopping at the first error.
func InvokeAll(calls []Callback, t float64) error {
	for _, c := range calls {
		if err := c.Invoke(t); err != nil {
			return err
		}
	}
	return nil
}

// #endregion callback

// #region next
// Next is either a fixed next-state id or a list of candidates with a selector
// returning an index into it.
type Next struct {
	candidates []ID
	selector   func() int
}

// To is a deterministic transition.
func To(id ID) Next {
	return Next{candidates: []ID{id}}
}

// Choice is a probabilistic transition; selector returns an index into ids.
func Choice(ids []ID, selector func() int) Next {
	cp := make([]ID, len(ids))
	copy(cp, ids)
	return Next{candidates: cp, selector: selector}
}

// Candidates returns the declared next-state ids.
func (n Next) Candidates() []ID {
	out := make([]ID, len(n.candidates))
	copy(out, n.candidates)
	return out
}

// Probabilistic reports whether the transition uses a selector.
func (n Next) Probabilistic() bool {
	return n.selector != nil || len(n.candidates) > 1
}

func (n Next) validate() error {
	if len(n.candidates) == 0 {
		return experr.Configf("next state is empty")
	}
	if len(n.candidates) > 1 && n.selector == nil {
		return experr.Configf("next is a list of %d states but no transition selector was given", len(n.candidates))
	}
	return nil
}

func (n Next) resolve() (ID, error) {
	if n.selector == nil {
		return n.candidates[0], nil
	}
	idx := n.selector()
	if idx < 0 || idx >= len(n.candidates) {
		return None, experr.Configf("transition selector returned index %d, want [0, %d)", idx, len(n.candidates))
	}
	return n.candidates[idx], nil
}

// #endregion next

// #region duration
// Duration is a fixed number of seconds or a function computing one per visit.
type Duration struct {
	fixed float64
	fn    func() float64
}

// Fixed is a constant duration in seconds. math.Inf(1) never ends on its own.
func Fixed(seconds float64) Duration {
	return Duration{fixed: seconds}
}

// Dynamic computes the duration on every visit.
func Dynamic(fn func() float64) Duration {
	return Duration{fn: fn}
}

func (d Duration) validate() error {
	if d.fn == nil {
		return checkDuration(d.fixed)
	}
	return nil
}

func (d Duration) resolve() (float64, error) {
	if d.fn == nil {
		return d.fixed, nil
	}
	v := d.fn()
	if err := checkDuration(v); err != nil {
		return 0, err
	}
	return v, nil
}

func checkDuration(v float64) error {
	if math.IsNaN(v) || v < 0 {
		return experr.Configf("duration must be a non-negative number, got %v", v)
	}
	return nil
}

// #endregion duration

// #region state-interface
// State is what the controller drives. MarkovState and FlickerStimState implement it.
type State interface {
	NextAndDuration() (ID, float64, error)
	Start(t float64) error
	Update(t float64) error
	End(t float64) error
	LogQueue() []string
	ClearLogQueue()
}

// #endregion state-interface
