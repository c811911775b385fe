package store

import (
	"errors"
	"time"

	"github.com/carepoint/council-controller/internal/eval"
	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/triage"
)

// ErrNotFound is returned when no consultation has the requested trace ID.
var ErrNotFound = errors.New("consultation not found")

// #region consultation
// Consultation is one stored request and its answer.
type Consultation struct {
	TraceID        string                    `json:"trace_id"`
	SubjectID      string                    `json:"subject_id"`
	Location       string                    `json:"location"`
	InputText      string                    `json:"input_text"`
	Lane           triage.Lane               `json:"lane"`
	FinalText      string                    `json:"final_text"`
	Urgency        triage.Urgency            `json:"urgency"`
	Confidence     float64                   `json:"confidence"`
	Opinions       map[string]expert.Opinion `json:"opinions"`
	Failures       []expert.Failure          `json:"failures,omitempty"`
	Experiments    []experiment.Assignment   `json:"experiments"`
	Report         eval.Report               `json:"report"`
	ImageDigest    string                    `json:"image_digest,omitempty"`
	ImageMIME      string                    `json:"image_mime,omitempty"`
	ProcessingTime time.Duration             `json:"processing_time"`
	FeedbackRating *int                      `json:"feedback_rating,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
}

// #endregion consultation

// #region feedback
// Feedback is a rating a user left on a consultation.
type Feedback struct {
	TraceID   string    `json:"trace_id"`
	SubjectID string    `json:"subject_id"`
	Rating    int       `json:"rating"`
	Label     string    `json:"label"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// #endregion feedback

// #region analytics
// ConsensusStats summarizes council agreement over a period.
type ConsensusStats struct {
	TotalConsultations int     `json:"total_consultations"`
	HighConsensusCount int     `json:"high_consensus_count"` // at least three experts, one urgency
	ConsensusRate      float64 `json:"consensus_rate"`
}

// #endregion analytics
