package council

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carepoint/council-controller/internal/eval"
	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/guardrail"
	"github.com/carepoint/council-controller/internal/logging"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/retrieval"
	"github.com/carepoint/council-controller/internal/router"
	"github.com/carepoint/council-controller/internal/store"
	"github.com/carepoint/council-controller/internal/synthesis"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion imports

// #region errors

// ErrInvalidRequest is returned before the pipeline starts when a request is
// missing required fields.
var ErrInvalidRequest = errors.New("invalid consultation request")

// #endregion errors

// #region request

// QAPair is one answered intake question.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Request is one patient query. It is not modified after Consult accepts it.
type Request struct {
	SubjectID    string   `json:"subject_id"`
	Text         string   `json:"text,omitempty"`
	Conversation []QAPair `json:"conversation,omitempty"`
	Image        string   `json:"image,omitempty"` // data URL or base64
	Location     string   `json:"location"`
}

// Validate checks the fields every consultation needs.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.SubjectID) == "":
		return fmt.Errorf("%w: subject_id is required", ErrInvalidRequest)
	case strings.TrimSpace(r.Location) == "":
		return fmt.Errorf("%w: location is required", ErrInvalidRequest)
	case r.PatientText() == "" && strings.TrimSpace(r.Image) == "":
		return fmt.Errorf("%w: text, conversation or image is required", ErrInvalidRequest)
	}
	return nil
}

// PatientText is the free text, or the conversation rendered as Q1:/A1:
// lines when no free text was given.
func (r Request) PatientText() string {
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	var lines []string
	for i, qa := range r.Conversation {
		if strings.TrimSpace(qa.Question) == "" && strings.TrimSpace(qa.Answer) == "" {
			continue
		}
		lines = append(lines,
			fmt.Sprintf("Q%d: %s", i+1, strings.TrimSpace(qa.Question)),
			fmt.Sprintf("A%d: %s", i+1, strings.TrimSpace(qa.Answer)))
	}
	return strings.Join(lines, "\n")
}

// #endregion request

// #region response

// Response is everything the caller receives for one consultation.
type Response struct {
	TraceID        string                    `json:"trace_id"`
	FinalText      string                    `json:"final_text"`
	Urgency        triage.Urgency            `json:"urgency"`
	Confidence     float64                   `json:"confidence"`
	Opinions       map[string]expert.Opinion `json:"opinions"`
	Failures       []expert.Failure          `json:"failures,omitempty"`
	Lane           triage.Lane               `json:"lane"`
	RoutingReason  string                    `json:"routing_reason"`
	ComposedBy     string                    `json:"composed_by,omitempty"`
	Experiments    []experiment.Assignment   `json:"experiments"`
	Report         eval.Report               `json:"report"`
	ProcessingTime time.Duration             `json:"processing_time"`
}

// #endregion response

// #region feedback

// FeedbackRequest rates a previous consultation. Rating 1 is positive and
// 0 negative; other values are kept as rating_N.
type FeedbackRequest struct {
	TraceID   string `json:"trace_id"`
	SubjectID string `json:"subject_id"`
	Rating    int    `json:"rating"`
	Text      string `json:"text,omitempty"`
}

// FeedbackResult reports what happened to a feedback submission.
type FeedbackResult struct {
	TraceID string `json:"trace_id"`
	Rating  int    `json:"rating"`
	Label   string `json:"label"`
	Stored  bool   `json:"stored"`
	Linked  bool   `json:"linked"` // a stored consultation carries the rating
}

// FeedbackLabel derives the label recorded for a rating.
func FeedbackLabel(rating int) string {
	switch rating {
	case 1:
		return "positive"
	case 0:
		return "negative"
	default:
		return fmt.Sprintf("rating_%d", rating)
	}
}

// #endregion feedback

// #region collaborators

// Recorder persists consultations and feedback.
type Recorder interface {
	SaveConsultation(ctx context.Context, c store.Consultation) error
	SaveFeedback(ctx context.Context, f store.Feedback) (bool, error)
}

// DecisionLogger records pipeline decisions for later inspection.
type DecisionLogger interface {
	LogDecision(ctx context.Context, entry logging.DecisionEntry) error
}

// #endregion collaborators

// #region deps

// Deps is the explicitly constructed context every consultation runs in.
// Retriever, Recorder and Decisions are optional.
type Deps struct {
	Assigner    *experiment.Assigner
	Router      *router.Router
	Retriever   *retrieval.Retriever
	Pool        *expert.Pool
	Synthesizer *synthesis.Synthesizer
	Guardrails  *guardrail.Evaluator
	Monitor     *monitor.Monitor
	Quality     *eval.Harness
	Recorder    Recorder
	Decisions   DecisionLogger
	Logger      *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
	// PersistTimeout bounds one background save. Defaults to 5s.
	PersistTimeout time.Duration
}

// #endregion deps
