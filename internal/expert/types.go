package expert

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion

// #region backend

// Backend is one model that can answer a prompt, optionally with an image.
type Backend interface {
	Name() string
	Invoke(ctx context.Context, prompt string, image *Image) (string, error)
}

// #endregion

// #region vote

// Vote is an urgency label and confidence.
type Vote struct {
	Urgency    triage.Urgency `yaml:"urgency" json:"urgency"`
	Confidence float64        `yaml:"confidence" json:"confidence"`
}

// DefaultVote is used when an expert's answer carries no parseable vote.
func DefaultVote(lane triage.Lane) Vote {
	switch lane {
	case triage.LaneVisual:
		return Vote{Urgency: triage.UrgencyMedium, Confidence: 0.80}
	case triage.LaneCouncil:
		return Vote{Urgency: triage.UrgencyHigh, Confidence: 0.90}
	default:
		return Vote{Urgency: triage.UrgencyMedium, Confidence: 0.85}
	}
}

// #endregion

// #region opinion

// VoteSource records where an opinion's vote came from.
type VoteSource string

const (
	SourceStructured VoteSource = "structured"
	SourcePattern    VoteSource = "pattern"
	SourceDefault    VoteSource = "default"
)

// Opinion is one expert's answer. Confidence is always in [0,1].
type Opinion struct {
	Expert     string         `json:"expert"`
	Text       string         `json:"text"`
	Urgency    triage.Urgency `json:"urgency"`
	Confidence float64        `json:"confidence"`
	Source     VoteSource     `json:"source"`
}

// Failure records an expert that produced nothing.
type Failure struct {
	Expert string `json:"expert"`
	Reason string `json:"reason"`
}

// Outcome is the result of one lane execution. Both slices are sorted by
// expert name.
type Outcome struct {
	Opinions []Opinion
	Failures []Failure
}

// #endregion

// #region prompt-context

// PromptContext is everything a lane prompt is built from.
type PromptContext struct {
	PatientText      string
	RetrievedContext string
	Style            experiment.PromptStyle
	Image            *Image
}

// #endregion

// #region config

// Config assigns experts to lanes.
type Config struct {
	Fast        string          `yaml:"fast"`
	Visual      string          `yaml:"visual"`
	Council     []string        `yaml:"council"`
	Timeout     time.Duration   `yaml:"timeout"`
	MaxParallel int             `yaml:"max_parallel"`
	Votes       map[string]Vote `yaml:"votes"` // per-expert default vote on the council lane
}

// DefaultConfig returns the lane lineup shipped with the controller.
func DefaultConfig() Config {
	return Config{
		Fast:        "gemini-flash",
		Visual:      "gemini-flash",
		Council:     []string{"gemini-flash", "gemini-pro", "medgemma"},
		Timeout:     20 * time.Second,
		MaxParallel: 3,
		Votes: map[string]Vote{
			"gemini-pro": {Urgency: triage.UrgencyHigh, Confidence: 0.92},
			"medgemma":   {Urgency: triage.UrgencyHigh, Confidence: 0.88},
		},
	}
}

// #endregion

// #region errors

// ErrAllExpertsFailed is matched by errors.Is on an *AllFailedError.
var ErrAllExpertsFailed = errors.New("all experts failed")

// AllFailedError carries every failure of a lane that produced no opinion.
type AllFailedError struct {
	Lane     triage.Lane
	Failures []Failure
}

func (e *AllFailedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Expert + ": " + f.Reason
	}
	return fmt.Sprintf("%s lane: %v (%s)", e.Lane, ErrAllExpertsFailed, strings.Join(parts, "; "))
}

func (e *AllFailedError) Unwrap() error { return ErrAllExpertsFailed }

// #endregion
