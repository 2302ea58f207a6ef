package replay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/controller"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/design"
)

// helper: two trials, no query, fixed ITI.
func shortDesign() *design.Design {
	d := design.DefaultDesign()
	d.Trials = d.Trials[:2]
	d.Stimulus.Duration = 1
	d.Query.Probability = 0
	d.InterTrial = design.JitterPhase{Min: 0.5, Max: 0.5}
	return d
}

// 1. Clean run: finishes, audit passes, no dropped frames.
func TestReplay_CleanRun(t *testing.T) {
	r, err := Replay(context.Background(), shortDesign(), DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if r.Mode != controller.ModeFinished {
		t.Errorf("expected mode=finished, got %s", r.Mode)
	}
	if len(r.States) != 6 {
		t.Errorf("expected 6 states, got %d: %v", len(r.States), r.States)
	}
	if r.Dropped != 0 {
		t.Errorf("expected no dropped frames, got %d", r.Dropped)
	}
	if !r.Audit.Passed {
		t.Errorf("expected audit to pass: %s", r.Audit.Reason)
	}
	if r.Session == nil || len(r.Session.Events) == 0 {
		t.Error("expected flicker events in session")
	}
}

// 2. Dropped frames: the display reports them and the audit sees late toggles.
func TestReplay_DroppedFrames(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.DropEvery = 5

	r, err := Replay(context.Background(), shortDesign(), cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if r.Dropped == 0 {
		t.Fatal("expected dropped frames")
	}
	late, ok := r.Audit.Metric("late_toggles")
	if !ok {
		t.Fatal("expected late_toggles metric")
	}
	if late.Value == 0 {
		t.Error("expected late toggles with dropped frames")
	}
}

// 3. Cancelled context: the run stops and the error surfaces.
func TestReplay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Replay(ctx, shortDesign(), DefaultReplayConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// 4. Compare reports each unmet expectation.
func TestCompare_ReportsDiffs(t *testing.T) {
	r, err := Replay(context.Background(), shortDesign(), DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if diffs := Compare(ExpectedFrom(r), r); len(diffs) != 0 {
		t.Fatalf("expected no diffs against own recording, got %v", diffs)
	}

	failed := false
	bad := Expected{
		States:      []string{"fixation"},
		Refreshes:   r.Refreshes + 1,
		Triggers:    []int{99},
		AuditPassed: &failed,
	}
	diffs := Compare(bad, r)
	if len(diffs) != 4 {
		t.Fatalf("expected 4 diffs, got %d: %v", len(diffs), diffs)
	}
	if !strings.HasPrefix(diffs[0], "states:") {
		t.Errorf("expected states diff first, got %s", diffs[0])
	}
}

// 5. Invalid design fails before running.
func TestReplay_InvalidDesign(t *testing.T) {
	d := shortDesign()
	d.Blocks = 0
	if _, err := Replay(context.Background(), d, DefaultReplayConfig()); err == nil {
		t.Fatal("expected error for zero blocks")
	}
}

// 6. Display rate differs from the design: the design is retargeted, the caller's copy is not.
func TestReplay_RetargetsDesignRate(t *testing.T) {
	des := shortDesign()
	des.FrameLock = true
	cfg := DefaultReplayConfig()
	cfg.RefreshRate = 32

	r, err := Replay(context.Background(), des, cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if r.Dropped != 0 {
		t.Errorf("expected no dropped frames, got %d", r.Dropped)
	}
	if !r.Audit.Passed {
		t.Errorf("expected audit to pass at 32 Hz: %s", r.Audit.Reason)
	}
	if des.RefreshRate != 60 {
		t.Errorf("expected caller's design to stay at 60 Hz, got %v", des.RefreshRate)
	}
}
