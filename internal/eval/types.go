package eval

// #region imports
import (
	"context"
	"time"

	"github.com/carepoint/council-controller/internal/codec"
	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/guardrail"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion

// #region config

// Config holds limits for quality evaluation.
type Config struct {
	MaxWords             int           `yaml:"max_words"`
	HallucinationTimeout time.Duration `yaml:"hallucination_timeout"`
	HighStakesKeywords   []string      `yaml:"-"`
}

// DefaultConfig returns the evaluation defaults.
func DefaultConfig() Config {
	return Config{
		MaxWords:             50,
		HallucinationTimeout: 15 * time.Second,
	}
}

// #endregion config

// #region scorer

// HallucinationScorer judges whether an answer is grounded. It is optional.
type HallucinationScorer interface {
	ScoreHallucination(ctx context.Context, input, output, reference string) (codec.HallucinationScore, error)
}

// Hallucination labels set locally when no scorer result exists.
const (
	LabelSkipped = "skipped"
	LabelError   = "error"
)

// #endregion scorer

// #region quality

// WordCount compares the answer length to the budget.
type WordCount struct {
	Count       int  `json:"count"`
	Limit       int  `json:"limit"`
	WithinLimit bool `json:"within_limit"`
}

// FormatCheck reports whether the answer names an urgency label.
type FormatCheck struct {
	HasUrgencyLevel bool           `json:"has_urgency_level"`
	UrgencyAssigned triage.Urgency `json:"urgency_assigned"`
}

// UrgencyAlignment compares the assigned urgency to what the input implies.
type UrgencyAlignment struct {
	Expected             string         `json:"expected"`
	Assigned             triage.Urgency `json:"assigned"`
	Aligned              bool           `json:"aligned"`
	HasEmergencyKeywords bool           `json:"has_emergency_keywords"`
}

// Consensus measures agreement between council experts.
type Consensus struct {
	Score              float64        `json:"score"` // share of experts agreeing with the modal urgency
	ModalUrgency       triage.Urgency `json:"modal_urgency"`
	ConfidenceVariance float64        `json:"confidence_variance"`
	NumModels          int            `json:"num_models"`
}

// Hallucination is the scorer's verdict. Score is nil when no score exists.
type Hallucination struct {
	Score          *float64 `json:"score,omitempty"`
	Label          string   `json:"label"`
	Explanation    string   `json:"explanation,omitempty"`
	IsHallucinated bool     `json:"is_hallucinated"`
}

// Quality collects every quality evaluation of one answer.
type Quality struct {
	WordCount     WordCount        `json:"word_count"`
	Format        FormatCheck      `json:"format_check"`
	Alignment     UrgencyAlignment `json:"urgency_alignment"`
	CouncilUsed   bool             `json:"council_used"`
	Consensus     *Consensus       `json:"council_consensus,omitempty"`
	Hallucination Hallucination    `json:"hallucination"`
}

// QualityInput is what the harness evaluates.
type QualityInput struct {
	PatientText string
	FinalText   string
	Urgency     triage.Urgency
	Lane        triage.Lane
	Opinions    []expert.Opinion
	Reference   string // retrieved context, passed to the scorer
}

// #endregion quality

// #region report

// Condition is a non-blocking degradation observed during a consultation.
type Condition struct {
	Component string `json:"component"`
	Message   string `json:"message"`
}

// Parts are the already computed results the report is built from.
type Parts struct {
	Lane        triage.Lane
	Guardrails  guardrail.Result
	Quality     Quality
	Metrics     map[string]float64
	Performance monitor.Report
	Experiments []experiment.Assignment
	Conditions  []Condition
}

// Report is the structured evaluation of one consultation.
type Report struct {
	Lane        triage.Lane             `json:"lane"`
	Guardrails  guardrail.Result        `json:"guardrails"`
	Quality     Quality                 `json:"quality"`
	Metrics     map[string]float64      `json:"metrics"`
	Performance monitor.Report          `json:"performance"`
	Experiments []experiment.Assignment `json:"experiments"`
	Conditions  []Condition             `json:"conditions,omitempty"`
}

// #endregion report
