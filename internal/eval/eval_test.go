package eval

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/carepoint/council-controller/internal/codec"
	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/guardrail"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/triage"
)

type fakeScorer struct {
	score codec.HallucinationScore
	err   error
	gotRef string
}

func (f *fakeScorer) ScoreHallucination(_ context.Context, _, _, reference string) (codec.HallucinationScore, error) {
	f.gotRef = reference
	return f.score, f.err
}

// #region evaluator-tests
func TestCountWords(t *testing.T) {
	if got := CountWords("one two  three\nfour", 3); got.Count != 4 || got.WithinLimit {
		t.Errorf("got %+v", got)
	}
	if got := CountWords("", 50); got.Count != 0 || !got.WithinLimit {
		t.Errorf("empty: got %+v", got)
	}
}

func TestAlignUrgency(t *testing.T) {
	tests := []struct {
		input    string
		assigned triage.Urgency
		want     bool
	}{
		{"I have chest pain", triage.UrgencyEmergency, true},
		{"I have chest pain", triage.UrgencyHigh, true},
		{"I have chest pain", triage.UrgencyMedium, false},
		{"mild headache", triage.UrgencyLow, true},
		{"mild headache", triage.UrgencyHigh, false},
		{"mild headache", triage.Urgency("BOGUS"), false},
	}
	for _, tt := range tests {
		got := AlignUrgency(tt.input, tt.assigned, nil)
		if tt.input == "I have chest pain" {
			got = AlignUrgency(tt.input, tt.assigned, []string{"chest pain"})
		}
		if got.Aligned != tt.want {
			t.Errorf("%q/%s: aligned=%v, want %v", tt.input, tt.assigned, got.Aligned, tt.want)
		}
	}
}

func TestMeasureConsensus(t *testing.T) {
	if MeasureConsensus([]expert.Opinion{{Urgency: triage.UrgencyHigh}}) != nil {
		t.Error("single opinion should yield no consensus")
	}

	c := MeasureConsensus([]expert.Opinion{
		{Urgency: triage.UrgencyHigh, Confidence: 0.9},
		{Urgency: triage.UrgencyHigh, Confidence: 0.8},
		{Urgency: triage.UrgencyEmergency, Confidence: 0.7},
	})
	if c.ModalUrgency != triage.UrgencyHigh {
		t.Errorf("modal: got %q", c.ModalUrgency)
	}
	if c.Score != 2.0/3.0 {
		t.Errorf("score: got %v", c.Score)
	}
	if c.ConfidenceVariance != 0.0067 {
		t.Errorf("variance: got %v", c.ConfidenceVariance)
	}
	if c.NumModels != 3 {
		t.Errorf("num models: got %d", c.NumModels)
	}
}

func TestMeasureConsensus_TiePicksSevere(t *testing.T) {
	c := MeasureConsensus([]expert.Opinion{
		{Urgency: triage.UrgencyLow, Confidence: 0.5},
		{Urgency: triage.UrgencyEmergency, Confidence: 0.5},
	})
	if c.ModalUrgency != triage.UrgencyEmergency || c.Score != 0.5 {
		t.Errorf("got %+v", c)
	}
	if c.ConfidenceVariance != 0 {
		t.Errorf("variance: got %v", c.ConfidenceVariance)
	}
}

// #endregion evaluator-tests

// #region harness-tests
func TestHarness_Run(t *testing.T) {
	scorer := &fakeScorer{score: codec.HallucinationScore{Score: 0.1, Label: "factual"}}
	h := NewHarness(DefaultConfig(), scorer, nil)

	q := h.Run(context.Background(), QualityInput{
		PatientText: "I have chest pain",
		FinalText:   "Call 911 now. Urgency: EMERGENCY.",
		Urgency:     triage.UrgencyEmergency,
		Lane:        triage.LaneCouncil,
		Opinions: []expert.Opinion{
			{Expert: "a", Urgency: triage.UrgencyEmergency, Confidence: 0.9},
			{Expert: "b", Urgency: triage.UrgencyEmergency, Confidence: 0.9},
		},
	})

	if !q.Format.HasUrgencyLevel || !q.Alignment.Aligned || !q.CouncilUsed {
		t.Errorf("quality: %+v", q)
	}
	if q.Consensus == nil || q.Consensus.Score != 1 {
		t.Errorf("consensus: %+v", q.Consensus)
	}
	if q.Hallucination.Score == nil || *q.Hallucination.Score != 0.1 || q.Hallucination.IsHallucinated {
		t.Errorf("hallucination: %+v", q.Hallucination)
	}
	if scorer.gotRef != "I have chest pain" {
		t.Errorf("reference should default to the input, got %q", scorer.gotRef)
	}

	s := q.Signals()
	if *s.WordCount != 6 || *s.HallucinationScore != 0.1 || *s.CouncilConsensus != 1 {
		t.Errorf("signals: words=%d h=%v c=%v", *s.WordCount, *s.HallucinationScore, *s.CouncilConsensus)
	}
}

func TestHarness_FastLaneNoConsensus(t *testing.T) {
	h := NewHarness(DefaultConfig(), nil, nil)
	q := h.Run(context.Background(), QualityInput{
		PatientText: "mild headache",
		FinalText:   "Rest. Urgency: LOW.",
		Urgency:     triage.UrgencyLow,
		Lane:        triage.LaneFast,
		Opinions:    []expert.Opinion{{Urgency: triage.UrgencyLow}, {Urgency: triage.UrgencyLow}},
	})
	if q.CouncilUsed || q.Consensus != nil {
		t.Errorf("fast lane: %+v", q)
	}
	if q.Hallucination.Label != LabelSkipped || q.Hallucination.Score != nil {
		t.Errorf("hallucination: %+v", q.Hallucination)
	}
	if q.Signals().CouncilConsensus != nil {
		t.Error("consensus signal should be absent")
	}
}

func TestHarness_ScorerError(t *testing.T) {
	h := NewHarness(DefaultConfig(), &fakeScorer{err: errors.New("judge offline")}, nil)
	q := h.Run(context.Background(), QualityInput{PatientText: "x", FinalText: "y", Reference: "ref"})
	if q.Hallucination.Label != LabelError || q.Hallucination.Explanation != "judge offline" {
		t.Errorf("got %+v", q.Hallucination)
	}
	if q.Signals().HallucinationScore != nil {
		t.Error("failed scorer must not produce a score")
	}
}

type stuckScorer struct{ release chan struct{} }

func (s stuckScorer) ScoreHallucination(context.Context, string, string, string) (codec.HallucinationScore, error) {
	<-s.release
	return codec.HallucinationScore{Score: 0.9, Label: "hallucinated"}, nil
}

func TestHarness_ScorerIgnoringDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cfg := DefaultConfig()
	cfg.HallucinationTimeout = 20 * time.Millisecond
	h := NewHarness(cfg, stuckScorer{release: release}, nil)

	start := time.Now()
	q := h.Run(context.Background(), QualityInput{PatientText: "x", FinalText: "LOW urgency. Rest."})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("scoring took %s", elapsed)
	}
	if q.Hallucination.Label != LabelError || q.Hallucination.Score != nil {
		t.Errorf("got %+v", q.Hallucination)
	}
}

// #endregion harness-tests

// #region aggregate-tests
func TestAggregate_PreservesParts(t *testing.T) {
	parts := Parts{
		Lane:        triage.LaneCouncil,
		Guardrails:  guardrail.Result{Mode: guardrail.ModeAdvisory, AllPassed: true, Warnings: []guardrail.Warning{{Check: "response_length"}}},
		Quality:     Quality{WordCount: WordCount{Count: 12, Limit: 50, WithinLimit: true}},
		Metrics:     map[string]float64{monitor.MetricConfidenceScore: 0.6},
		Performance: monitor.Report{CriticalCount: 1, Checks: []monitor.Check{{Metric: monitor.MetricConfidenceScore, Status: monitor.StatusCritical}}},
		Experiments: []experiment.Assignment{{Experiment: "prompt_style", Variant: "control"}},
		Conditions:  []Condition{{Component: "retrieval", Message: "timed out"}},
	}
	r := Aggregate(parts)
	if r.Guardrails.Warnings[0].Check != "response_length" || r.Performance.CriticalCount != 1 {
		t.Errorf("report: %+v", r)
	}
	if r.Conditions[0].Component != "retrieval" || r.Experiments[0].Variant != "control" {
		t.Errorf("report: %+v", r)
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range r.Fields() {
		f.AddTo(enc)
	}
	m := enc.Fields
	if m["experiment.prompt_style"] != "control" {
		t.Errorf("experiment field: %v", m["experiment.prompt_style"])
	}
	if m["performance.confidence_score"] != 0.6 {
		t.Errorf("metric field: %v", m["performance.confidence_score"])
	}
	if m["performance.alert.confidence_score"] != "critical" {
		t.Errorf("alert field: %v", m["performance.alert.confidence_score"])
	}
	if m["guardrails.warning_count"] != int64(1) {
		t.Errorf("warning count field: %v (%T)", m["guardrails.warning_count"], m["guardrails.warning_count"])
	}
	if m["conditions"] != int64(1) {
		t.Errorf("conditions field: %v", m["conditions"])
	}
}

func TestFields_Deterministic(t *testing.T) {
	r := Report{Metrics: map[string]float64{"b": 1, "a": 2, "c": 3}}
	first := r.Fields()
	for i := 0; i < 10; i++ {
		again := r.Fields()
		for j := range first {
			if first[j].Key != again[j].Key {
				t.Fatalf("field order changed at %d: %s vs %s", j, first[j].Key, again[j].Key)
			}
		}
	}
	_ = zap.Field{}
}

// #endregion aggregate-tests
