// Package replay runs experiment designs on the simulated display and compares
// the outcome against recorded expectations.
package replay

import (
	"context"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/audit"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/controller"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/design"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/trigger"
)

// #region types

// ReplayConfig sets up the simulated display and the audit run afterwards.
type ReplayConfig struct {
	RefreshRate float64
	DropEvery   int
	AuditConfig audit.AuditConfig
}

// DefaultReplayConfig returns a clean 60 Hz display and default audit thresholds.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		RefreshRate: 60,
		AuditConfig: audit.DefaultAuditConfig(),
	}
}

// ReplayResult captures one simulated run.
type ReplayResult struct {
	States    []string
	Refreshes int
	Dropped   int
	Triggers  []trigger.Code
	Mode      controller.Mode
	Session   *logging.Session
	Audit     audit.AuditResult
}

// #endregion types

// #region replay

// Replay builds des on a virtual display, runs it to completion with a mock
// trigger port, then audits the log. A display rate that differs from the design's
// retargets a copy of the design, and the audit always measures frames at the
// display rate.
func Replay(ctx context.Context, des *design.Design, config ReplayConfig) (*ReplayResult, error) {
	if config.RefreshRate <= 0 {
		config.RefreshRate = des.RefreshRate
	}
	if config.RefreshRate != des.RefreshRate {
		retargeted, err := des.AtRefreshRate(config.RefreshRate)
		if err != nil {
			return nil, fmt.Errorf("build design: %w", err)
		}
		des = retargeted
	}
	config.AuditConfig.RefreshRate = config.RefreshRate

	clock := display.NewVirtualClock(0)
	var opts []display.VirtualOption
	if config.DropEvery > 0 {
		opts = append(opts, display.WithDroppedFrames(config.DropEvery))
	}
	v, err := display.NewVirtual(clock, config.RefreshRate, opts...)
	if err != nil {
		return nil, fmt.Errorf("virtual display: %w", err)
	}

	exp, err := design.Build(des, v)
	if err != nil {
		return nil, fmt.Errorf("build design: %w", err)
	}
	l := logging.New(exp.Loggables())
	l.SetLabel("replay:" + des.Name)
	port := trigger.NewMock()
	c, err := exp.NewController(v, clock, l, port, nil, controller.WithLogger(logger.Discard()))
	if err != nil {
		return nil, err
	}
	if err := c.RunExperiment(ctx); err != nil {
		return nil, fmt.Errorf("run %s: %w", des.Name, err)
	}

	session := l.Snapshot()
	return &ReplayResult{
		States:    stateSequence(session),
		Refreshes: v.Refreshes(),
		Dropped:   v.Dropped(),
		Triggers:  port.Codes(),
		Mode:      c.Mode(),
		Session:   session,
		Audit:     audit.NewHarness(config.AuditConfig).Run(session),
	}, nil
}

// ReplayFixture runs a fixture's design under its display settings.
func ReplayFixture(ctx context.Context, f *Fixture) (*ReplayResult, error) {
	des, err := f.ToDesign()
	if err != nil {
		return nil, err
	}
	return Replay(ctx, des, f.ToReplayConfig(des))
}

// Compare lists every expectation r does not meet.
func Compare(expected Expected, r *ReplayResult) []string {
	var diffs []string
	if expected.States != nil && !slices.Equal(expected.States, r.States) {
		diffs = append(diffs, fmt.Sprintf("states: expected %v, got %v", expected.States, r.States))
	}
	if expected.Refreshes > 0 && expected.Refreshes != r.Refreshes {
		diffs = append(diffs, fmt.Sprintf("refreshes: expected %d, got %d", expected.Refreshes, r.Refreshes))
	}
	if expected.Dropped > 0 && expected.Dropped != r.Dropped {
		diffs = append(diffs, fmt.Sprintf("dropped: expected %d, got %d", expected.Dropped, r.Dropped))
	}
	if got := codes(r.Triggers); expected.Triggers != nil && !slices.Equal(expected.Triggers, got) {
		diffs = append(diffs, fmt.Sprintf("triggers: expected %v, got %v", expected.Triggers, got))
	}
	if expected.AuditPassed != nil && *expected.AuditPassed != r.Audit.Passed {
		diffs = append(diffs, fmt.Sprintf("audit: expected passed=%v, got %v (%s)", *expected.AuditPassed, r.Audit.Passed, r.Audit.Reason))
	}
	return diffs
}

// ExpectedFrom records r as the expectation for future runs.
func ExpectedFrom(r *ReplayResult) Expected {
	passed := r.Audit.Passed
	return Expected{
		States:      append([]string(nil), r.States...),
		Refreshes:   r.Refreshes,
		Dropped:     r.Dropped,
		Triggers:    codes(r.Triggers),
		AuditPassed: &passed,
	}
}

func codes(cs []trigger.Code) []int {
	out := make([]int, len(cs))
	for i, c := range cs {
		out[i] = int(c)
	}
	return out
}

func stateSequence(s *logging.Session) []string {
	out := make([]string, 0, len(s.Records))
	for _, rec := range s.Records {
		name, _ := rec.Fields["state"].(string)
		out = append(out, name)
	}
	return out
}

// #endregion replay
