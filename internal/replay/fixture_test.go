package replay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/carepoint/council-controller/internal/eval"
	"github.com/carepoint/council-controller/internal/guardrail"
	"github.com/carepoint/council-controller/internal/store"
	"github.com/carepoint/council-controller/internal/triage"
)

// #region fixture-tests

// TestFixture_Regression loads the regression fixture, runs Replay(), and
// compares each case's Action against the expected action. If guardrail
// keywords or thresholds change, this catches drift.
func TestFixture_Regression(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "regression.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, err := Replay(f.ToCases(), f.Config.ToReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != len(f.ExpectedResults) {
		t.Fatalf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}

	for i, expected := range f.ExpectedResults {
		actual := results[i]
		if actual.TraceID != expected.TraceID {
			t.Errorf("case %d: expected trace_id=%s, got %s", i, expected.TraceID, actual.TraceID)
		}
		if actual.Action != expected.Action {
			t.Errorf("case %d (%s): expected action=%s, got action=%s (reason: %s)",
				i, expected.TraceID, expected.Action, actual.Action, actual.Reason)
		}
	}
}

// TestFixture_AdvisoryNeverBlocks replays the same fixture in advisory mode.
func TestFixture_AdvisoryNeverBlocks(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "regression.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	f.Config.GuardrailMode = guardrail.ModeAdvisory

	results, err := Replay(f.ToCases(), f.Config.ToReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	s := Summarize(results)
	if s.Blocked != 0 {
		t.Errorf("advisory mode blocked %d cases", s.Blocked)
	}
	if s.Passed != 1 || s.Warned != 3 {
		t.Errorf("expected 1 pass / 3 warn, got %+v", s)
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join("testdata", "nope.json")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

// #endregion fixture-tests

// #region export-tests

func TestFromConsultations_RoundTrip(t *testing.T) {
	consultations := []store.Consultation{
		{
			TraceID:   "t1",
			InputText: "mild cough",
			Lane:      triage.LaneFast,
			FinalText: "LOW urgency. Drink warm fluids.",
			Urgency:   triage.UrgencyLow,
			Report:    eval.Report{Metrics: map[string]float64{"response_latency": 1, "confidence_score": 0.9}},
			CreatedAt: time.Now(),
		},
		{
			TraceID:   "t2",
			InputText: "chest pain",
			Lane:      triage.LaneFast,
			FinalText: "HIGH urgency. See a doctor.",
			Urgency:   triage.UrgencyHigh,
		},
	}

	f, err := FromConsultations("export", consultations, FixtureConfig{GuardrailMode: guardrail.ModeBlocking})
	if err != nil {
		t.Fatalf("FromConsultations: %v", err)
	}
	if len(f.ExpectedResults) != 2 {
		t.Fatalf("expected 2 expected results, got %d", len(f.ExpectedResults))
	}
	if f.ExpectedResults[0].Action != ActionPass || f.ExpectedResults[1].Action != ActionBlock {
		t.Errorf("unexpected actions: %+v", f.ExpectedResults)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := f.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(loaded.Cases) != 2 || loaded.Cases[1].Input != "chest pain" {
		t.Errorf("round trip lost cases: %+v", loaded.Cases)
	}
}

// #endregion export-tests
