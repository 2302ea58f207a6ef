package display

import (
	"fmt"
	"time"
)

// #region virtual-clock
// VirtualClock is a manually advanced clock used by Virtual.
type VirtualClock struct {
	t float64
}

// NewVirtualClock returns a clock reading start.
func NewVirtualClock(start float64) *VirtualClock {
	return &VirtualClock{t: start}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() float64 {
	return c.t
}

// Advance moves the clock forward by dt seconds.
func (c *VirtualClock) Advance(dt float64) {
	c.t += dt
}

// #endregion virtual-clock

// #region element
// Element is a placeholder drawable for the virtual backend.
type Element struct {
	Name     string
	Props    map[string]any
	Released bool
}

// NewElement builds an element with a copy of props.
func NewElement(name string, props map[string]any) *Element {
	cp := make(map[string]any, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return &Element{Name: name, Props: cp}
}

// ID returns the element name.
func (e *Element) ID() string {
	return e.Name
}

// Release marks the element as released.
func (e *Element) Release() {
	e.Released = true
}

// #endregion element

// #region virtual
// VirtualOption configures a Virtual display.
type VirtualOption func(*Virtual)

// WithDroppedFrames makes every n-th refresh take two refresh intervals.
func WithDroppedFrames(every int) VirtualOption {
	return func(v *Virtual) {
		v.dropEvery = every
	}
}

// WithRealtime paces refreshes against the wall clock so that virtual time
// never runs ahead of real time since the first refresh.
func WithRealtime() VirtualOption {
	return func(v *Virtual) {
		v.realtime = true
	}
}

// Virtual is a deterministic display backend. Each refresh advances its clock by
// one refresh interval (two on a dropped frame) and fires RunOnNextRefresh callbacks.
type Virtual struct {
	clock       *VirtualClock
	interval    float64
	dropEvery   int
	refreshes   int
	dropped     int
	onFlip      []func()
	visible     map[string]bool
	transitions map[string]int
	realtime    bool
	wallStart   time.Time
	clockStart  float64
}

// NewVirtual creates a virtual display refreshing at refreshRate Hz on clock.
func NewVirtual(clock *VirtualClock, refreshRate float64, opts ...VirtualOption) (*Virtual, error) {
	if refreshRate <= 0 {
		return nil, fmt.Errorf("refresh rate must be positive, got %v", refreshRate)
	}
	v := &Virtual{
		clock:       clock,
		interval:    1 / refreshRate,
		visible:     make(map[string]bool),
		transitions: make(map[string]int),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// NewVirtualInterval creates a virtual display with an explicit refresh interval in seconds.
func NewVirtualInterval(clock *VirtualClock, interval float64, opts ...VirtualOption) (*Virtual, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %v", interval)
	}
	return NewVirtual(clock, 1/interval, opts...)
}

// PredictedNextRefresh assumes the next swap lands one interval after now.
func (v *Virtual) PredictedNextRefresh(clock Clock) float64 {
	return clock.Now() + v.interval
}

// Refresh advances the clock and runs pending on-refresh callbacks in order.
func (v *Virtual) Refresh() (float64, error) {
	if v.realtime && v.wallStart.IsZero() {
		v.wallStart = time.Now()
		v.clockStart = v.clock.Now()
	}
	v.refreshes++
	frames := 1
	if v.dropEvery > 0 && v.refreshes%v.dropEvery == 0 {
		frames = 2
		v.dropped++
	}
	v.clock.Advance(float64(frames) * v.interval)
	if v.realtime {
		due := v.wallStart.Add(time.Duration((v.clock.Now() - v.clockStart) * float64(time.Second)))
		time.Sleep(time.Until(due))
	}

	callbacks := v.onFlip
	v.onFlip = nil
	for _, fn := range callbacks {
		fn()
	}
	return v.clock.Now(), nil
}

// SetVisible records the requested visibility and counts on/off transitions.
func (v *Virtual) SetVisible(d Drawable, visible bool) {
	id := d.ID()
	if v.visible[id] != visible {
		v.transitions[id]++
	}
	v.visible[id] = visible
}

// RunOnNextRefresh queues fn for the next Refresh.
func (v *Virtual) RunOnNextRefresh(fn func()) {
	v.onFlip = append(v.onFlip, fn)
}

// Interval returns the nominal refresh interval in seconds.
func (v *Virtual) Interval() float64 {
	return v.interval
}

// Refreshes returns how many refreshes have been performed.
func (v *Virtual) Refreshes() int {
	return v.refreshes
}

// Dropped returns how many refreshes were simulated as dropped frames.
func (v *Virtual) Dropped() int {
	return v.dropped
}

// Visible reports the last visibility set for the drawable with id.
func (v *Virtual) Visible(id string) bool {
	return v.visible[id]
}

// Transitions returns how many times the drawable with id changed visibility.
func (v *Virtual) Transitions(id string) int {
	return v.transitions[id]
}

// #endregion virtual
