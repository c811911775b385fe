package eval

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/carepoint/council-controller/internal/codec"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/router"
	"github.com/carepoint/council-controller/internal/triage"
)

var urgencyLabel = regexp.MustCompile(`(?i)\b(low|medium|high|emergency)\b`)

// #region harness

// Harness runs the quality evaluations for one answer.
type Harness struct {
	config Config
	scorer HallucinationScorer
	logger *zap.Logger
}

// NewHarness creates a harness. scorer may be nil.
func NewHarness(config Config, scorer HallucinationScorer, logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxWords <= 0 {
		config.MaxWords = DefaultConfig().MaxWords
	}
	if config.HallucinationTimeout <= 0 {
		config.HallucinationTimeout = DefaultConfig().HallucinationTimeout
	}
	if config.HighStakesKeywords == nil {
		config.HighStakesKeywords = router.DefaultHighStakesKeywords
	}
	return &Harness{config: config, scorer: scorer, logger: logger}
}

// Run evaluates the answer. A scorer failure is recorded in the result, not
// returned.
func (h *Harness) Run(ctx context.Context, in QualityInput) Quality {
	q := Quality{
		WordCount:   CountWords(in.FinalText, h.config.MaxWords),
		Format:      FormatCheck{HasUrgencyLevel: urgencyLabel.MatchString(in.FinalText), UrgencyAssigned: in.Urgency},
		Alignment:   AlignUrgency(in.PatientText, in.Urgency, h.config.HighStakesKeywords),
		CouncilUsed: in.Lane == triage.LaneCouncil,
	}
	if q.CouncilUsed {
		q.Consensus = MeasureConsensus(in.Opinions)
	}
	q.Hallucination = h.hallucination(ctx, in)
	return q
}

func (h *Harness) hallucination(ctx context.Context, in QualityInput) Hallucination {
	if h.scorer == nil {
		return Hallucination{Label: LabelSkipped}
	}
	ref := in.Reference
	if ref == "" {
		ref = in.PatientText
	}
	ctx, cancel := context.WithTimeout(ctx, h.config.HallucinationTimeout)
	defer cancel()

	s, err := expert.Bounded(ctx, func(ctx context.Context) (codec.HallucinationScore, error) {
		return h.scorer.ScoreHallucination(ctx, in.PatientText, in.FinalText, ref)
	})
	if err != nil {
		h.logger.Warn("hallucination scoring failed", zap.Error(err))
		return Hallucination{Label: LabelError, Explanation: err.Error()}
	}
	score := s.Score
	return Hallucination{
		Score:          &score,
		Label:          s.Label,
		Explanation:    s.Explanation,
		IsHallucinated: s.Label == "hallucinated",
	}
}

// Signals exposes the measured values the performance monitor consumes.
func (q Quality) Signals() monitor.Signals {
	words := q.WordCount.Count
	s := monitor.Signals{WordCount: &words, HallucinationScore: q.Hallucination.Score}
	if q.Consensus != nil {
		score := q.Consensus.Score
		s.CouncilConsensus = &score
	}
	return s
}

// #endregion harness

// #region evaluators

// CountWords counts whitespace-separated words against limit.
func CountWords(text string, limit int) WordCount {
	n := len(strings.Fields(text))
	return WordCount{Count: n, Limit: limit, WithinLimit: n <= limit}
}

// AlignUrgency expects HIGH or EMERGENCY when the input has a high-stakes
// keyword and LOW or MEDIUM otherwise.
func AlignUrgency(input string, assigned triage.Urgency, keywords []string) UrgencyAlignment {
	stakes, _ := router.HighStakes(input, keywords)
	a := UrgencyAlignment{Assigned: assigned, HasEmergencyKeywords: stakes}
	if stakes {
		a.Expected = "HIGH or EMERGENCY"
		a.Aligned = assigned.Rank() >= triage.UrgencyHigh.Rank()
	} else {
		a.Expected = "LOW or MEDIUM"
		a.Aligned = assigned.Valid() && assigned.Rank() <= triage.UrgencyMedium.Rank()
	}
	return a
}

// MeasureConsensus returns nil for fewer than two opinions. Ties for the
// modal urgency resolve to the more severe label.
func MeasureConsensus(opinions []expert.Opinion) *Consensus {
	if len(opinions) < 2 {
		return nil
	}
	counts := make(map[triage.Urgency]int)
	var sum float64
	for _, o := range opinions {
		counts[o.Urgency]++
		sum += o.Confidence
	}
	var modal triage.Urgency
	best := 0
	for _, u := range triage.Levels {
		if counts[u] >= best && counts[u] > 0 {
			modal, best = u, counts[u]
		}
	}

	n := float64(len(opinions))
	mean := sum / n
	var variance float64
	for _, o := range opinions {
		d := o.Confidence - mean
		variance += d * d
	}
	variance /= n

	return &Consensus{
		Score:              float64(best) / n,
		ModalUrgency:       modal,
		ConfidenceVariance: math.Round(variance*10000) / 10000,
		NumModels:          len(opinions),
	}
}

// #endregion evaluators

// #region aggregate

// Aggregate composes the report from already computed parts.
func Aggregate(p Parts) Report {
	return Report{
		Lane:        p.Lane,
		Guardrails:  p.Guardrails,
		Quality:     p.Quality,
		Metrics:     p.Metrics,
		Performance: p.Performance,
		Experiments: p.Experiments,
		Conditions:  p.Conditions,
	}
}

// Fields flattens the report for structured logging.
func (r Report) Fields() []zap.Field {
	q := r.Quality
	fields := []zap.Field{
		zap.String("lane", string(r.Lane)),
		zap.Bool("guardrails.all_passed", r.Guardrails.AllPassed),
		zap.Int("guardrails.warning_count", len(r.Guardrails.Warnings)),
		zap.Int("eval.word_count", q.WordCount.Count),
		zap.Bool("eval.word_count.within_limit", q.WordCount.WithinLimit),
		zap.Bool("eval.urgency_alignment.is_aligned", q.Alignment.Aligned),
		zap.String("eval.urgency", string(q.Format.UrgencyAssigned)),
		zap.Bool("eval.council_used", q.CouncilUsed),
		zap.String("eval.hallucination.label", q.Hallucination.Label),
		zap.Bool("performance.all_ok", r.Performance.AllOK),
		zap.Int("performance.critical_count", r.Performance.CriticalCount),
		zap.Int("performance.warning_count", r.Performance.WarningCount),
	}
	if r.Guardrails.BlockedReason != "" {
		fields = append(fields, zap.String("guardrails.blocked_reason", r.Guardrails.BlockedReason))
	}
	if q.Hallucination.Score != nil {
		fields = append(fields, zap.Float64("eval.hallucination.score", *q.Hallucination.Score))
	}
	if q.Consensus != nil {
		fields = append(fields,
			zap.Float64("eval.council.consensus_score", q.Consensus.Score),
			zap.Int("eval.council.num_models", q.Consensus.NumModels))
	}
	for _, a := range r.Experiments {
		fields = append(fields, zap.String("experiment."+a.Experiment, a.Variant))
	}

	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, zap.Float64("performance."+name, r.Metrics[name]))
	}
	for _, c := range r.Performance.Checks {
		if c.Status != monitor.StatusOK {
			fields = append(fields, zap.String("performance.alert."+c.Metric, string(c.Status)))
		}
	}
	if len(r.Conditions) > 0 {
		fields = append(fields, zap.Int("conditions", len(r.Conditions)))
	}
	return fields
}

// #endregion aggregate
