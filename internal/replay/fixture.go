package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/design"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string          `json:"description"`
	Design      json.RawMessage `json:"design"`
	Display     FixtureDisplay  `json:"display"`
	Audit       *FixtureAudit   `json:"audit,omitempty"`
	Expected    Expected        `json:"expected"`
}

// FixtureDisplay configures the simulated display.
type FixtureDisplay struct {
	RefreshRate float64 `json:"refresh_rate"`
	DropEvery   int     `json:"drop_every"`
}

// FixtureAudit mirrors audit.AuditConfig with JSON tags. Zero fields keep defaults.
type FixtureAudit struct {
	MaxOvershootFrames float64 `json:"max_overshoot_frames"`
	MaxFrequencyError  float64 `json:"max_frequency_error"`
}

// Expected captures what a run must produce. Empty fields are not checked.
type Expected struct {
	States      []string `json:"states,omitempty"`
	Refreshes   int      `json:"refreshes,omitempty"`
	Dropped     int      `json:"dropped,omitempty"`
	Triggers    []int    `json:"triggers,omitempty"`
	AuditPassed *bool    `json:"audit_passed,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// SaveFixture writes f as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToDesign parses the embedded design. JSON is valid YAML, so the design
// loader reads it directly.
func (f *Fixture) ToDesign() (*design.Design, error) {
	if len(f.Design) == 0 {
		return nil, fmt.Errorf("fixture has no design")
	}
	return design.Parse(f.Design)
}

// ToReplayConfig converts the fixture's display and audit sections.
func (f *Fixture) ToReplayConfig(des *design.Design) ReplayConfig {
	cfg := DefaultReplayConfig()
	cfg.RefreshRate = des.RefreshRate
	if f.Display.RefreshRate > 0 {
		cfg.RefreshRate = f.Display.RefreshRate
	}
	cfg.DropEvery = f.Display.DropEvery
	cfg.AuditConfig.RefreshRate = cfg.RefreshRate
	if f.Audit != nil {
		if f.Audit.MaxOvershootFrames > 0 {
			cfg.AuditConfig.MaxOvershootFrames = f.Audit.MaxOvershootFrames
		}
		if f.Audit.MaxFrequencyError > 0 {
			cfg.AuditConfig.MaxFrequencyError = f.Audit.MaxFrequencyError
		}
	}
	return cfg
}

// #endregion fixture-loader
