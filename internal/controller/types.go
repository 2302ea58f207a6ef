package controller

// #region imports
import (
	"github.com/charmbracelet/log"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/metrics"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/state"
)

// #endregion imports

// #region mode
// Mode is the controller's execution mode.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeRunning  Mode = "running"
	ModePaused   Mode = "paused"
	ModeFinished Mode = "finished"
	ModeQuitting Mode = "quitting"
)

// Modes lists every mode in lifecycle order.
func Modes() []Mode {
	return []Mode{ModeIdle, ModeRunning, ModePaused, ModeFinished, ModeQuitting}
}

// #endregion mode

// #region event
// Event names a point in a state's lifecycle where hooks run.
type Event string

const (
	EventStart  Event = "start"
	EventUpdate Event = "update"
	EventEnd    Event = "end"
)

func (e Event) valid() bool {
	return e == EventStart || e == EventUpdate || e == EventEnd
}

// AllStates registers a hook for every state. Its hooks run after the state's own.
const AllStates state.ID = "all"

// #endregion event

// #region config
// Config describes the trial structure of a run.
type Config struct {
	Start          state.ID `yaml:"start" validate:"required"`
	TrialEnd       state.ID `yaml:"trial_end" validate:"required"`
	Blocks         int      `yaml:"blocks" validate:"gt=0"`
	TrialsPerBlock int      `yaml:"trials_per_block" validate:"gt=0"`
	// RefreshRate is the nominal refresh rate, used only for dropped-frame metrics.
	RefreshRate float64 `yaml:"refresh_rate" validate:"gte=0"`
}

// DefaultConfig returns a single-block, single-trial config at 60 Hz.
// Start and TrialEnd must still be set.
func DefaultConfig() Config {
	return Config{
		Blocks:         1,
		TrialsPerBlock: 1,
		RefreshRate:    60,
	}
}

// RequiredLoggables are the per-state keys the controller itself writes.
var RequiredLoggables = []string{
	"state_start",
	"state",
	"next_state",
	"target_end",
	"trial_number",
	"state_end",
	"block_number",
	"block_trial",
	"trial_end",
	"block_end",
}

// #endregion config

// #region loggable
// Loggable is either a literal Value or an Attribute path read from Object when
// the hook fires. Path segments name struct fields, map keys or zero-argument methods.
type Loggable struct {
	Key       string
	Value     any
	Object    any
	Attribute []string
}

// #endregion loggable

// #region collaborators
// KeyPoller reports keys pressed since the last poll.
type KeyPoller interface {
	Pressed() []string
}

// #endregion collaborators

// #region options
// Option configures a Controller.
type Option func(*Controller)

// WithLogger replaces the controller's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithModeListener registers fn to be called on every mode change.
func WithModeListener(fn func(Mode)) Option {
	return func(c *Controller) {
		c.listeners = append(c.listeners, fn)
	}
}

// WithKeys polls p after every update refresh. quitKey requests a quit and
// pauseKey toggles pause. Either key may be empty.
func WithKeys(p KeyPoller, quitKey, pauseKey string) Option {
	return func(c *Controller) {
		c.keys = p
		c.quitKey = quitKey
		c.pauseKey = pauseKey
	}
}

// WithMetrics records refresh timing and counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// #endregion options
