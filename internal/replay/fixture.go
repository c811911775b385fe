package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/carepoint/council-controller/internal/guardrail"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/store"
	"github.com/carepoint/council-controller/internal/triage"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Cases           []FixtureCase           `json:"cases"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig mirrors Config with JSON tags.
type FixtureConfig struct {
	GuardrailMode  guardrail.Mode      `json:"guardrail_mode"`
	MaxWords       int                 `json:"max_words"`
	ActionKeywords []string            `json:"action_keywords,omitempty"`
	Keywords       []string            `json:"high_stakes_keywords,omitempty"`
	Thresholds     []monitor.Threshold `json:"thresholds,omitempty"`
}

// FixtureCase mirrors Case with JSON tags.
type FixtureCase struct {
	TraceID   string             `json:"trace_id"`
	Input     string             `json:"input"`
	Lane      triage.Lane        `json:"lane"`
	FinalText string             `json:"final_text"`
	Urgency   triage.Urgency     `json:"urgency"`
	Metrics   map[string]float64 `json:"metrics"`
}

// FixtureExpectedResult captures the expected action per case.
type FixtureExpectedResult struct {
	TraceID string `json:"trace_id"`
	Action  string `json:"action"`
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

// Write saves the fixture as indented JSON.
func (f *Fixture) Write(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToCase converts a FixtureCase to a domain Case.
func (fc *FixtureCase) ToCase() Case {
	return Case{
		TraceID:   fc.TraceID,
		Input:     fc.Input,
		Lane:      fc.Lane,
		FinalText: fc.FinalText,
		Urgency:   fc.Urgency,
		Metrics:   fc.Metrics,
	}
}

// ToCases converts every fixture case.
func (f *Fixture) ToCases() []Case {
	cases := make([]Case, len(f.Cases))
	for i := range f.Cases {
		cases[i] = f.Cases[i].ToCase()
	}
	return cases
}

// ToReplayConfig fills unset fixture fields from DefaultConfig.
func (fc *FixtureConfig) ToReplayConfig() Config {
	cfg := DefaultConfig()
	if fc.GuardrailMode != "" {
		cfg.Guardrails.Mode = fc.GuardrailMode
	}
	if fc.MaxWords > 0 {
		cfg.Guardrails.MaxWords = fc.MaxWords
	}
	if len(fc.ActionKeywords) > 0 {
		cfg.Guardrails.ActionKeywords = fc.ActionKeywords
	}
	if len(fc.Keywords) > 0 {
		cfg.Keywords = fc.Keywords
	}
	if len(fc.Thresholds) > 0 {
		cfg.Thresholds = fc.Thresholds
	}
	return cfg
}

// #endregion fixture-loader

// #region export

// FromConsultations builds a fixture from stored consultations. Expected
// results are what the given config decides today, so a later replay under
// changed settings shows the drift.
func FromConsultations(description string, consultations []store.Consultation, config FixtureConfig) (*Fixture, error) {
	f := &Fixture{Description: description, Config: config}
	for _, c := range consultations {
		f.Cases = append(f.Cases, FixtureCase{
			TraceID:   c.TraceID,
			Input:     c.InputText,
			Lane:      c.Lane,
			FinalText: c.FinalText,
			Urgency:   c.Urgency,
			Metrics:   c.Report.Metrics,
		})
	}

	results, err := Replay(f.ToCases(), config.ToReplayConfig())
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{TraceID: r.TraceID, Action: r.Action})
	}
	return f, nil
}

// #endregion export
