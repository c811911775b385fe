package guardrail

// #region imports
import (
	"fmt"
	"regexp"
	"strings"

	"github.com/carepoint/council-controller/internal/router"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion

var urgencyLabel = regexp.MustCompile(`(?i)\b(low|medium|high|emergency)\b`)

// #region evaluator

// Evaluator runs the fixed guardrail battery on a final answer.
type Evaluator struct {
	config Config
}

// NewEvaluator creates an evaluator. An empty mode means blocking.
func NewEvaluator(config Config) (*Evaluator, error) {
	if config.Mode == "" {
		config.Mode = ModeBlocking
	}
	if _, err := ParseMode(string(config.Mode)); err != nil {
		return nil, err
	}
	if config.MaxWords <= 0 {
		config.MaxWords = DefaultConfig().MaxWords
	}
	if len(config.ActionKeywords) == 0 {
		config.ActionKeywords = DefaultActionKeywords
	}
	if config.HighStakesKeywords == nil {
		config.HighStakesKeywords = router.DefaultHighStakesKeywords
	}
	return &Evaluator{config: config}, nil
}

// Mode reports the active mode.
func (e *Evaluator) Mode() Mode { return e.config.Mode }

// #endregion evaluator

// #region evaluate

// Evaluate computes every check. In advisory mode failures become warnings
// and the error is nil. In blocking mode failing checks are marked failed
// and a *RejectionError names the first one.
func (e *Evaluator) Evaluate(input, final string, urgency triage.Urgency, lane triage.Lane) (Result, error) {
	outcomes := []outcome{
		e.emergencyRouting(input, lane),
		e.responseLength(final),
		e.urgencyPresent(final),
		e.escalationAction(final, urgency),
	}

	res := Result{Mode: e.config.Mode, AllPassed: true}
	for _, o := range outcomes {
		c := Check{Name: o.name, Passed: true, Message: o.msg}
		if !o.ok {
			res.Warnings = append(res.Warnings, Warning{Check: o.name, Message: o.msg})
			if e.config.Mode == ModeBlocking {
				c.Passed = false
				res.AllPassed = false
				if res.BlockedReason == "" {
					res.BlockedReason = fmt.Sprintf("%s: %s", o.name, o.msg)
				}
			}
		}
		res.Checks = append(res.Checks, c)
	}

	if !res.AllPassed {
		for _, c := range res.Checks {
			if !c.Passed {
				return res, &RejectionError{Check: c.Name, Message: c.Message}
			}
		}
	}
	return res, nil
}

// #endregion evaluate

// #region checks

type outcome struct {
	name string
	ok   bool
	msg  string
}

func (e *Evaluator) emergencyRouting(input string, lane triage.Lane) outcome {
	stakes, matched := router.HighStakes(input, e.config.HighStakesKeywords)
	if stakes && lane == triage.LaneFast {
		return result(CheckEmergencyRouting, false,
			fmt.Sprintf("emergency keywords %s routed to fast lane", strings.Join(matched, ", ")))
	}
	return result(CheckEmergencyRouting, true, "emergency routing check passed")
}

func (e *Evaluator) responseLength(final string) outcome {
	n := len(strings.Fields(final))
	if n > e.config.MaxWords {
		return result(CheckResponseLength, false,
			fmt.Sprintf("response exceeds limit (%d words > %d)", n, e.config.MaxWords))
	}
	return result(CheckResponseLength, true, fmt.Sprintf("length check passed (%d/%d words)", n, e.config.MaxWords))
}

func (e *Evaluator) urgencyPresent(final string) outcome {
	if !urgencyLabel.MatchString(final) {
		return result(CheckUrgencyPresent, false, "response missing urgency level")
	}
	return result(CheckUrgencyPresent, true, "urgency level present in response")
}

func (e *Evaluator) escalationAction(final string, urgency triage.Urgency) outcome {
	if urgency != triage.UrgencyEmergency {
		return result(CheckEscalationAction, true, "not an emergency")
	}
	lower := strings.ToLower(final)
	for _, kw := range e.config.ActionKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return result(CheckEscalationAction, true, "immediate action directive present")
		}
	}
	return result(CheckEscalationAction, false, "emergency urgency without immediate action directive")
}

func result(name string, ok bool, msg string) outcome {
	return outcome{name: name, ok: ok, msg: msg}
}

// #endregion checks
