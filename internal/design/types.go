package design

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/state"
)

// #region paradigm
// Paradigm selects the stimulus layout.
type Paradigm string

const (
	TwoWord Paradigm = "twoword"
	OneWord Paradigm = "oneword"
)

// conditions allowed per paradigm, with the trigger group each maps to.
var conditions = map[Paradigm]map[string]string{
	TwoWord: {"phrase": "PHRASE", "non-phrase": "NONPHRASE", "non-word": "NONWORD"},
	OneWord: {"word": "WORD", "non-word": "NONWORD"},
}

// #endregion paradigm

// #region design
// Design is an experiment definition as read from YAML.
type Design struct {
	Name        string   `yaml:"name" validate:"required"`
	Paradigm    Paradigm `yaml:"paradigm" validate:"required,oneof=twoword oneword"`
	RefreshRate float64  `yaml:"refresh_rate" validate:"gt=0"`
	Blocks      int      `yaml:"blocks" validate:"gte=1"`
	Seed        uint64   `yaml:"seed"`
	Shuffle     bool     `yaml:"shuffle"`
	// Frequencies are the two tagging frequencies F1 and F2 in Hz.
	Frequencies []float64 `yaml:"frequencies" validate:"len=2,dive,gt=0"`
	// FrameLock snaps every frequency to the nearest one with a whole number of
	// refreshes per half period.
	FrameLock  bool        `yaml:"frame_lock"`
	Fixation   Phase       `yaml:"fixation"`
	Stimulus   Phase       `yaml:"stimulus"`
	Query      QueryPhase  `yaml:"query"`
	InterTrial JitterPhase `yaml:"intertrial"`
	PauseText  string      `yaml:"pause_text"`
	Trials     []Trial     `yaml:"trials" validate:"required,min=1,dive"`
}

// Phase is a fixed-duration state.
type Phase struct {
	Duration float64 `yaml:"duration" validate:"gt=0"`
}

// QueryPhase follows the stimulus with probability Probability.
type QueryPhase struct {
	Probability float64 `yaml:"probability" validate:"gte=0,lte=1"`
	Duration    float64 `yaml:"duration" validate:"gte=0"`
}

// JitterPhase draws its duration uniformly from [Min, Max].
type JitterPhase struct {
	Min float64 `yaml:"min" validate:"gte=0"`
	Max float64 `yaml:"max" validate:"gtefield=Min"`
}

// Trial is one row of the stimulus list.
type Trial struct {
	Word1     string  `yaml:"word1" validate:"required"`
	Word2     string  `yaml:"word2"`
	Condition string  `yaml:"condition" validate:"required"`
	Word1Freq float64 `yaml:"word1_freq" validate:"gte=0"`
	Word2Freq float64 `yaml:"word2_freq" validate:"gte=0"`
}

// Words lists the trial's non-empty words.
func (t Trial) Words() []string {
	if t.Word2 == "" {
		return []string{t.Word1}
	}
	return []string{t.Word1, t.Word2}
}

// #endregion design

// #region defaults
// DefaultPauseText is shown on the pause screen when the design gives none.
const DefaultPauseText = "Time for a break!"

// DefaultDesign returns a short two-word run at 60 Hz, tagged at 7.5 and 12 Hz.
func DefaultDesign() *Design {
	return &Design{
		Name:        "twoword-demo",
		Paradigm:    TwoWord,
		RefreshRate: 60,
		Blocks:      1,
		Seed:        1,
		Frequencies: []float64{7.5, 12},
		Fixation:    Phase{Duration: 0.5},
		Stimulus:    Phase{Duration: 2},
		Query:       QueryPhase{Probability: 0.2, Duration: 1},
		InterTrial:  JitterPhase{Min: 0.8, Max: 1.2},
		PauseText:   DefaultPauseText,
		Trials: []Trial{
			{Word1: "red", Word2: "boat", Condition: "phrase", Word1Freq: 7.5, Word2Freq: 12},
			{Word1: "boat", Word2: "red", Condition: "non-phrase", Word1Freq: 12, Word2Freq: 7.5},
			{Word1: "blick", Word2: "trone", Condition: "non-word", Word1Freq: 7.5, Word2Freq: 12},
		},
	}
}

// #endregion defaults

// #region loading
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load reads, normalizes and validates a design file.
func Load(path string) (*Design, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read design: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("design %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes YAML. Unknown fields are rejected.
func Parse(data []byte) (*Design, error) {
	d := &Design{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(d); err != nil {
		return nil, fmt.Errorf("%w: parse design: %v", experr.ErrConfig, err)
	}
	d.normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// normalize fills defaults and applies frame locking.
func (d *Design) normalize() {
	if d.PauseText == "" {
		d.PauseText = DefaultPauseText
	}
	d.Paradigm = Paradigm(strings.ToLower(string(d.Paradigm)))
	if !d.FrameLock || d.RefreshRate <= 0 {
		return
	}
	for i, f := range d.Frequencies {
		d.Frequencies[i] = state.NearestFrequency(f, d.RefreshRate)
	}
	for i := range d.Trials {
		d.Trials[i].Word1Freq = state.NearestFrequency(d.Trials[i].Word1Freq, d.RefreshRate)
		d.Trials[i].Word2Freq = state.NearestFrequency(d.Trials[i].Word2Freq, d.RefreshRate)
	}
}

// Validate checks struct tags, then the cross-field rules the tags cannot express.
func (d *Design) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", experr.ErrConfig, err)
	}
	if d.Query.Probability > 0 && d.Query.Duration <= 0 {
		return experr.Configf("query duration must be positive when probability is %v", d.Query.Probability)
	}
	allowed := conditions[d.Paradigm]
	for i, t := range d.Trials {
		if _, ok := allowed[t.Condition]; !ok {
			return experr.Configf("trial %d: condition %q not valid for %s", i, t.Condition, d.Paradigm)
		}
		if d.Paradigm == TwoWord && t.Word2 == "" {
			return experr.Configf("trial %d: two-word trial needs word2", i)
		}
		if _, err := d.tagSide(t); err != nil {
			return fmt.Errorf("trial %d: %w", i, err)
		}
	}
	return nil
}

// AtRefreshRate returns a copy of d that runs at hz. Frame locking is applied
// again for the new rate, and the copy is validated.
func (d *Design) AtRefreshRate(hz float64) (*Design, error) {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return nil, experr.Configf("refresh rate must be positive and finite, got %v", hz)
	}
	out := *d
	out.Frequencies = append([]float64(nil), d.Frequencies...)
	out.Trials = append([]Trial(nil), d.Trials...)
	out.RefreshRate = hz
	out.normalize()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// tagSide names which frequency slot of the trigger group t belongs to:
// F1LEFT/F1RIGHT for two-word trials, F1/F2 for one-word trials.
func (d *Design) tagSide(t Trial) (string, error) {
	f1, f2 := d.Frequencies[0], d.Frequencies[1]
	switch d.Paradigm {
	case TwoWord:
		if isClose(t.Word1Freq, f1) {
			return "F1LEFT", nil
		}
		if isClose(t.Word2Freq, f1) {
			return "F1RIGHT", nil
		}
	case OneWord:
		if isClose(t.Word1Freq, f1) {
			return "F1", nil
		}
		if isClose(t.Word1Freq, f2) {
			return "F2", nil
		}
	}
	return "", experr.Configf("no word is tagged at a design frequency %v", d.Frequencies)
}

func isClose(a, b float64) bool {
	return math.Abs(a-b) <= 1e-8+1e-5*math.Abs(b)
}

// #endregion loading
