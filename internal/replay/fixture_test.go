package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// #region fixture-tests

// TestFixture_TwoTrials loads the two_trials fixture, replays it and compares
// the state sequence, refresh count, trigger stream and audit verdict. If
// timing or trigger wiring changes, this catches drift.
func TestFixture_TwoTrials(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "two_trials.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	result, err := ReplayFixture(context.Background(), f)
	if err != nil {
		t.Fatalf("ReplayFixture: %v", err)
	}

	for _, diff := range Compare(f.Expected, result) {
		t.Error(diff)
	}
}

// TestFixture_RoundTrip records a run's expectations, saves and reloads the
// fixture, and replays it again.
func TestFixture_RoundTrip(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "two_trials.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	f.Display.DropEvery = 7
	f.Expected = Expected{}

	first, err := ReplayFixture(context.Background(), f)
	if err != nil {
		t.Fatalf("ReplayFixture: %v", err)
	}
	f.Expected = ExpectedFrom(first)

	path := filepath.Join(t.TempDir(), "recorded.json")
	if err := SaveFixture(path, f); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if loaded.Display.DropEvery != 7 {
		t.Fatalf("expected drop_every=7, got %d", loaded.Display.DropEvery)
	}

	second, err := ReplayFixture(context.Background(), loaded)
	if err != nil {
		t.Fatalf("ReplayFixture: %v", err)
	}
	if diffs := Compare(loaded.Expected, second); len(diffs) > 0 {
		t.Fatalf("replay is not deterministic: %v", diffs)
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// TestFixture_MissingDesign verifies a fixture without a design is rejected.
func TestFixture_MissingDesign(t *testing.T) {
	f := &Fixture{Description: "empty"}
	if _, err := ReplayFixture(context.Background(), f); err == nil {
		t.Fatal("expected error for fixture without design")
	}
}

// #endregion fixture-tests
