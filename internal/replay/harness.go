package replay

import (
	"fmt"

	"github.com/carepoint/council-controller/internal/guardrail"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/router"
	"github.com/carepoint/council-controller/internal/triage"
)

// #region types
// Case is one recorded answer to re-check.
type Case struct {
	TraceID   string
	Input     string
	Lane      triage.Lane
	FinalText string
	Urgency   triage.Urgency
	Metrics   map[string]float64
}

// Config bundles the guardrail and threshold settings a replay runs under.
type Config struct {
	Guardrails guardrail.Config
	Thresholds []monitor.Threshold
	Keywords   []string
}

// DefaultConfig returns the production guardrails and thresholds.
func DefaultConfig() Config {
	return Config{
		Guardrails: guardrail.DefaultConfig(),
		Thresholds: monitor.DefaultThresholds(),
		Keywords:   router.DefaultHighStakesKeywords,
	}
}

// Replay actions.
const (
	ActionPass  = "pass"  // every guardrail passed, no critical metric
	ActionWarn  = "warn"  // advisory warnings or critical metrics
	ActionBlock = "block" // a blocking guardrail rejected the answer
)

// Result captures the outcome of re-checking one case.
type Result struct {
	TraceID     string
	Action      string
	Reason      string
	Guardrails  guardrail.Result
	Performance monitor.Report
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total    int
	Passed   int
	Warned   int
	Blocked  int
	Critical int // critical metric checks across all cases
}

// #endregion types

// #region replay
// Replay re-runs guardrails and the performance monitor over recorded
// answers. No model is called.
func Replay(cases []Case, config Config) ([]Result, error) {
	gc := config.Guardrails
	gc.HighStakesKeywords = config.Keywords
	guards, err := guardrail.NewEvaluator(gc)
	if err != nil {
		return nil, fmt.Errorf("replay guardrails: %w", err)
	}
	mon, err := monitor.NewMonitor(config.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("replay thresholds: %w", err)
	}

	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		g, gerr := guards.Evaluate(c.Input, c.FinalText, c.Urgency, c.Lane)
		perf := mon.CheckAll(c.Metrics)

		r := Result{TraceID: c.TraceID, Guardrails: g, Performance: perf}
		switch {
		case gerr != nil:
			r.Action = ActionBlock
			r.Reason = g.BlockedReason
		case len(g.Warnings) > 0:
			r.Action = ActionWarn
			r.Reason = fmt.Sprintf("%d guardrail warnings, first %s", len(g.Warnings), g.Warnings[0].Check)
		case perf.CriticalCount > 0:
			r.Action = ActionWarn
			r.Reason = fmt.Sprintf("%d critical metrics", perf.CriticalCount)
		default:
			r.Action = ActionPass
		}
		results = append(results, r)
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Action {
		case ActionPass:
			s.Passed++
		case ActionWarn:
			s.Warned++
		case ActionBlock:
			s.Blocked++
		}
		s.Critical += r.Performance.CriticalCount
	}
	return s
}

// #endregion replay
