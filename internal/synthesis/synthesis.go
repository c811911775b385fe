package synthesis

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion

// #region aggregate

// AggregateUrgency returns the highest urgency among the opinions, or MEDIUM
// when there are none.
func AggregateUrgency(opinions []expert.Opinion) triage.Urgency {
	levels := make([]triage.Urgency, len(opinions))
	for i, o := range opinions {
		levels[i] = o.Urgency
	}
	return triage.MaxUrgency(levels...)
}

// MeanConfidence is the mean opinion confidence rounded to three decimals,
// or 0.5 when there are no opinions.
func MeanConfidence(opinions []expert.Opinion) float64 {
	if len(opinions) == 0 {
		return 0.5
	}
	var sum float64
	for _, o := range opinions {
		sum += o.Confidence
	}
	return math.Round(sum/float64(len(opinions))*1000) / 1000
}

// #endregion

// #region synthesizer

// Synthesizer merges opinions into one answer through an ordered chain of
// composing backends.
type Synthesizer struct {
	composers []expert.Backend
	config    Config
	logger    *zap.Logger
}

// NewSynthesizer orders the composers by config.Order. Every name in the
// order must have a backend.
func NewSynthesizer(backends []expert.Backend, config Config, logger *zap.Logger) (*Synthesizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.ExcerptWords <= 0 {
		config.ExcerptWords = DefaultConfig().ExcerptWords
	}
	byName := make(map[string]expert.Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}
	composers := make([]expert.Backend, 0, len(config.Order))
	for _, name := range config.Order {
		b, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no backend for composer %q", name)
		}
		composers = append(composers, b)
	}
	return &Synthesizer{composers: composers, config: config, logger: logger}, nil
}

// #endregion

// #region synthesize

// Synthesize never fails. When every composer fails it falls back to the
// first opinion by expert name, then to SafeFallbackMessage.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) Result {
	opinions := append([]expert.Opinion(nil), in.Opinions...)
	sort.Slice(opinions, func(i, j int) bool { return opinions[i].Expert < opinions[j].Expert })

	res := Result{
		Urgency:    AggregateUrgency(opinions),
		Confidence: MeanConfidence(opinions),
	}

	if in.Direct && len(opinions) == 1 && strings.TrimSpace(opinions[0].Text) != "" {
		res.FinalText = withUrgencyLabel(strings.TrimSpace(opinions[0].Text), res.Urgency)
		res.ComposedBy = opinions[0].Expert
		return res
	}

	if len(opinions) > 0 {
		prompt := in.Style.Apply(s.prompt(in.PatientText, opinions))
		for _, c := range s.composers {
			text, att := s.compose(ctx, c, prompt)
			res.Attempts = append(res.Attempts, att)
			if att.Err == "" {
				res.FinalText = text
				res.ComposedBy = c.Name()
				break
			}
			s.logger.Warn("composer failed", zap.String("composer", c.Name()), zap.String("error", att.Err))
		}
	}

	if res.ComposedBy == "" {
		res.Degraded = true
		if len(opinions) > 0 && opinions[0].Text != "" {
			res.FinalText = opinions[0].Text
		} else {
			res.FinalText = SafeFallbackMessage
		}
		s.logger.Warn("synthesis degraded",
			zap.Int("opinions", len(opinions)),
			zap.Int("attempts", len(res.Attempts)))
	}
	return res
}

func (s *Synthesizer) compose(ctx context.Context, c expert.Backend, prompt string) (string, Attempt) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	text, err := expert.Call(ctx, c, prompt, nil)
	att := Attempt{Composer: c.Name(), Elapsed: time.Since(start)}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		att.Err = fmt.Sprintf("timed out after %s", s.config.Timeout)
	case err != nil:
		att.Err = err.Error()
	case strings.TrimSpace(text) == "":
		att.Err = "empty response"
	}
	return strings.TrimSpace(text), att
}

// #endregion

// #region prompt

const synthesisTemplate = `Patient: %s

Expert opinions:
%s

CRITICAL INSTRUCTION: Respond in EXACTLY 50 words or less. This will be converted to speech.

Provide: Assessment, urgency level (LOW/MEDIUM/HIGH/EMERGENCY), and one clear action.
Be direct and calming.`

func (s *Synthesizer) prompt(patient string, opinions []expert.Opinion) string {
	if strings.TrimSpace(patient) == "" {
		patient = "(image only)"
	}
	lines := make([]string, len(opinions))
	for i, o := range opinions {
		lines[i] = fmt.Sprintf("%s (%s, %.2f): %s", o.Expert, o.Urgency, o.Confidence, excerpt(o.Text, s.config.ExcerptWords))
	}
	return fmt.Sprintf(synthesisTemplate, patient, strings.Join(lines, "\n"))
}

var urgencyLabel = regexp.MustCompile(`(?i)\b(low|medium|high|emergency)\b`)

// withUrgencyLabel prefixes the urgency when a structured answer left it out
// of the text.
func withUrgencyLabel(text string, u triage.Urgency) string {
	if urgencyLabel.MatchString(text) {
		return text
	}
	return fmt.Sprintf("%s urgency. %s", u, text)
}

func excerpt(text string, words int) string {
	f := strings.Fields(text)
	if len(f) <= words {
		return strings.Join(f, " ")
	}
	return strings.Join(f[:words], " ") + " ..."
}

// #endregion
