package guardrail

// #region imports
import (
	"fmt"
)

// #endregion

// #region mode

// Mode selects whether failing checks block the response.
type Mode string

const (
	ModeAdvisory Mode = "advisory"
	ModeBlocking Mode = "blocking"
)

// ParseMode rejects names other than advisory and blocking.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAdvisory, ModeBlocking:
		return m, nil
	}
	return "", fmt.Errorf("unknown guardrail mode %q", s)
}

// #endregion

// #region names

// Check names in evaluation order.
const (
	CheckEmergencyRouting = "emergency_routing"
	CheckResponseLength   = "response_length"
	CheckUrgencyPresent   = "urgency_present"
	CheckEscalationAction = "escalation_action"
)

// #endregion

// #region config

// DefaultActionKeywords count as an immediate-action directive.
var DefaultActionKeywords = []string{"call", "emergency", "911", "hospital", "ambulance", "immediately"}

// Config holds the guardrail thresholds.
type Config struct {
	Mode               Mode     `yaml:"mode"`
	MaxWords           int      `yaml:"max_words"`
	ActionKeywords     []string `yaml:"action_keywords"`
	HighStakesKeywords []string `yaml:"-"`
}

// DefaultConfig returns blocking mode with a 50-word budget. The
// high-stakes keyword list is filled in from routing config.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeBlocking,
		MaxWords:       50,
		ActionKeywords: DefaultActionKeywords,
	}
}

// #endregion

// #region result

// Check is the outcome of one guardrail.
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Warning is a failed check reported without blocking.
type Warning struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// Result lists every check in evaluation order.
type Result struct {
	Mode          Mode      `json:"mode"`
	AllPassed     bool      `json:"all_passed"`
	Checks        []Check   `json:"checks"`
	Warnings      []Warning `json:"warnings"`
	BlockedReason string    `json:"blocked_reason,omitempty"`
}

// RejectionError is returned in blocking mode for the first failing check.
type RejectionError struct {
	Check   string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("response blocked by guardrail %s: %s", e.Check, e.Message)
}

// #endregion
