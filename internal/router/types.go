package router

// #region imports
import (
	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion

// #region keywords

// DefaultHighStakesKeywords trigger council deliberation.
var DefaultHighStakesKeywords = []string{
	"chest pain", "can't breathe", "unconscious", "severe bleeding",
	"stroke", "heart attack", "anaphylaxis", "choking", "seizure",
}

// #endregion

// #region config

// Config controls lane selection.
type Config struct {
	HighStakesKeywords []string `yaml:"high_stakes_keywords"`
	// VisualLane sends image-only input without a keyword match to the
	// single-expert visual lane instead of the council.
	VisualLane bool `yaml:"visual_lane"`
	// SensitivePercent is the share of remaining subjects the sensitive
	// council policy escalates to council.
	SensitivePercent int `yaml:"sensitive_percent"`
}

// DefaultConfig returns the production routing rules.
func DefaultConfig() Config {
	return Config{
		HighStakesKeywords: DefaultHighStakesKeywords,
		VisualLane:         false,
		SensitivePercent:   30,
	}
}

// #endregion

// #region input

// Input is the slice of a request the router looks at.
type Input struct {
	Text      string
	HasImage  bool
	SubjectID string
}

// #endregion

// #region decision

// Decision is the routing outcome for one request. It is computed once and
// passed by value.
type Decision struct {
	Lane       triage.Lane
	HighStakes bool
	Matched    []string
	Policy     experiment.CouncilPolicy
	Reason     string
}

// #endregion
