package synthesis

// #region imports
import (
	"time"

	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion

// SafeFallbackMessage is returned when there is nothing to compose from.
const SafeFallbackMessage = "Unable to provide assessment. Please consult a healthcare provider."

// #region config

// Config controls the composing chain.
type Config struct {
	Order        []string      `yaml:"order"` // composer names, tried in order
	Timeout      time.Duration `yaml:"timeout"`
	ExcerptWords int           `yaml:"excerpt_words"` // words of each opinion shown to the composer
}

// DefaultConfig returns the composing chain defaults.
func DefaultConfig() Config {
	return Config{
		Order:        []string{"gemini-flash", "gemini-pro", "medgemma"},
		Timeout:      20 * time.Second,
		ExcerptWords: 30,
	}
}

// #endregion

// #region input-result

// Input is what one synthesis works from.
type Input struct {
	PatientText string
	Opinions    []expert.Opinion
	Style       experiment.PromptStyle
	// Direct skips the composers when there is exactly one opinion and uses
	// its text as the answer. Single-expert lanes set it.
	Direct bool
}

// Attempt records one composer call.
type Attempt struct {
	Composer string        `json:"composer"`
	Err      string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Result is the merged answer. Urgency is never below the highest opinion
// urgency.
type Result struct {
	FinalText  string         `json:"final_text"`
	Urgency    triage.Urgency `json:"urgency"`
	Confidence float64        `json:"confidence"`
	ComposedBy string         `json:"composed_by,omitempty"` // empty when no composer succeeded
	Degraded   bool           `json:"degraded"`
	Attempts   []Attempt      `json:"attempts,omitempty"`
}

// #endregion
