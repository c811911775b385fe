package council

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carepoint/council-controller/internal/eval"
	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/logging"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/retrieval"
	"github.com/carepoint/council-controller/internal/router"
	"github.com/carepoint/council-controller/internal/store"
	"github.com/carepoint/council-controller/internal/synthesis"
	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion imports

// #region orchestrator

// Orchestrator runs consultations through assignment, routing, retrieval,
// the expert pool, synthesis, guardrails, quality evaluation and the
// performance monitor.
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New checks that every required component is present.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Assigner == nil:
		return nil, errors.New("council: assigner is required")
	case deps.Router == nil:
		return nil, errors.New("council: router is required")
	case deps.Pool == nil:
		return nil, errors.New("council: expert pool is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("council: synthesizer is required")
	case deps.Guardrails == nil:
		return nil, errors.New("council: guardrails are required")
	case deps.Monitor == nil:
		return nil, errors.New("council: monitor is required")
	case deps.Quality == nil:
		return nil, errors.New("council: quality harness is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.PersistTimeout <= 0 {
		deps.PersistTimeout = 5 * time.Second
	}
	return &Orchestrator{deps: deps, logger: deps.Logger}, nil
}

// Wait blocks until background persistence has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// #endregion orchestrator

// #region consult

// Consult answers one request. The only errors are ErrInvalidRequest,
// expert.ErrAllExpertsFailed and *guardrail.RejectionError in blocking
// mode; every other problem is recorded in the report.
func (o *Orchestrator) Consult(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var image *expert.Image
	if strings.TrimSpace(req.Image) != "" {
		img, err := expert.DecodeImage(req.Image)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		image = img
	}

	start := o.deps.Now()
	traceID := uuid.New().String()
	text := req.PatientText()
	log := o.logger.With(zap.String("trace_id", traceID), zap.String("subject_id", req.SubjectID))
	var conditions []eval.Condition

	// 1. Experiments
	assignments := o.deps.Assigner.AssignAll(req.SubjectID)
	style, policy, cond := strategies(assignments)
	conditions = append(conditions, cond...)

	// 2. Route
	decision := o.deps.Router.Decide(router.Input{Text: text, HasImage: image != nil, SubjectID: req.SubjectID}, policy)
	log.Info("routed",
		zap.String("lane", string(decision.Lane)),
		zap.String("reason", decision.Reason),
		zap.String("policy", string(decision.Policy)))
	o.decide(ctx, log, logging.DecisionEntry{
		TraceID: traceID, Component: "router", Decision: logging.DecisionRoute,
		Reason: fmt.Sprintf("%s: %s", decision.Lane, decision.Reason),
	}, decision)

	// 3. Knowledge
	var knowledge retrieval.Result
	if o.deps.Retriever != nil && text != "" {
		knowledge = o.deps.Retriever.Retrieve(ctx, text)
		if knowledge.Degraded {
			conditions = append(conditions, eval.Condition{Component: "retrieval", Message: knowledge.Reason})
		}
	}

	// 4. Experts
	outcome, err := o.deps.Pool.Consult(ctx, decision.Lane, expert.PromptContext{
		PatientText:      text,
		RetrievedContext: knowledge.Context,
		Style:            style,
		Image:            image,
	})
	if err != nil {
		o.decide(ctx, log, logging.DecisionEntry{
			TraceID: traceID, Component: "expert", Decision: logging.DecisionAbort, Reason: err.Error(),
		}, outcome.Failures)
		return nil, fmt.Errorf("consultation %s: %w", traceID, err)
	}
	if len(outcome.Failures) > 0 {
		for _, f := range outcome.Failures {
			conditions = append(conditions, eval.Condition{Component: "expert", Message: f.Expert + ": " + f.Reason})
		}
		o.decide(ctx, log, logging.DecisionEntry{
			TraceID: traceID, Component: "expert", Decision: logging.DecisionPartial,
			Reason: fmt.Sprintf("%d of %d experts failed", len(outcome.Failures), len(outcome.Failures)+len(outcome.Opinions)),
		}, outcome.Failures)
	}

	// 5. Synthesis
	synth := o.deps.Synthesizer.Synthesize(ctx, synthesis.Input{
		PatientText: text,
		Opinions:    outcome.Opinions,
		Style:       style,
		Direct:      decision.Lane != triage.LaneCouncil,
	})
	if synth.Degraded {
		conditions = append(conditions, eval.Condition{
			Component: "synthesis",
			Message:   fmt.Sprintf("all %d composers failed, used fallback text", len(synth.Attempts)),
		})
		o.decide(ctx, log, logging.DecisionEntry{
			TraceID: traceID, Component: "synthesis", Decision: logging.DecisionDegraded, Reason: "composer chain exhausted",
		}, synth.Attempts)
	}

	// 6. Guardrails
	guard, err := o.deps.Guardrails.Evaluate(text, synth.FinalText, synth.Urgency, decision.Lane)
	if err != nil {
		log.Warn("response blocked", zap.String("check", guard.BlockedReason), zap.Error(err))
		o.decide(ctx, log, logging.DecisionEntry{
			TraceID: traceID, Component: "guardrail", Decision: logging.DecisionReject, Reason: guard.BlockedReason,
		}, guard)
		return nil, fmt.Errorf("consultation %s: %w", traceID, err)
	}
	for _, w := range guard.Warnings {
		log.Warn("guardrail warning", zap.String("check", w.Check), zap.String("message", w.Message))
	}

	// 7. Quality
	quality := o.deps.Quality.Run(ctx, eval.QualityInput{
		PatientText: text,
		FinalText:   synth.FinalText,
		Urgency:     synth.Urgency,
		Lane:        decision.Lane,
		Opinions:    outcome.Opinions,
		Reference:   knowledge.Context,
	})
	if quality.Hallucination.Label == eval.LabelError {
		conditions = append(conditions, eval.Condition{Component: "hallucination", Message: quality.Hallucination.Explanation})
	}

	// 8. Performance
	elapsed := o.deps.Now().Sub(start)
	metrics := monitor.ExtractMetrics(elapsed, synth.Confidence, quality.Signals())
	perf := o.deps.Monitor.CheckAll(metrics)
	for _, c := range perf.Checks {
		switch c.Status {
		case monitor.StatusCritical:
			log.Error("performance threshold exceeded", zap.String("metric", c.Metric), zap.Float64("value", c.Value), zap.String("message", c.Message))
		case monitor.StatusWarning:
			log.Warn("performance threshold approaching", zap.String("metric", c.Metric), zap.Float64("value", c.Value), zap.String("message", c.Message))
		}
	}
	if perf.CriticalCount > 0 {
		o.decide(ctx, log, logging.DecisionEntry{
			TraceID: traceID, Component: "monitor", Decision: logging.DecisionAlert,
			Reason: fmt.Sprintf("%d critical metrics", perf.CriticalCount),
		}, perf.Checks)
	}

	// 9. Report
	report := eval.Aggregate(eval.Parts{
		Lane:        decision.Lane,
		Guardrails:  guard,
		Quality:     quality,
		Metrics:     metrics,
		Performance: perf,
		Experiments: assignments,
		Conditions:  conditions,
	})
	log.Info("consultation complete", report.Fields()...)

	resp := &Response{
		TraceID:        traceID,
		FinalText:      synth.FinalText,
		Urgency:        synth.Urgency,
		Confidence:     synth.Confidence,
		Opinions:       opinionMap(outcome.Opinions),
		Failures:       outcome.Failures,
		Lane:           decision.Lane,
		RoutingReason:  decision.Reason,
		ComposedBy:     synth.ComposedBy,
		Experiments:    assignments,
		Report:         report,
		ProcessingTime: elapsed,
	}
	o.persist(log, req, text, image, resp)
	return resp, nil
}

// strategies resolves the assigned variants to their closed strategy types.
// The assigner only accepts known variants, so a parse failure means the
// assignment was built by hand; it falls back to control and is reported.
func strategies(assignments []experiment.Assignment) (experiment.PromptStyle, experiment.CouncilPolicy, []eval.Condition) {
	var conditions []eval.Condition
	style, err := experiment.ParsePromptStyle(experiment.Of(assignments, experiment.PromptStyleExperiment))
	if err != nil {
		style = experiment.StyleControl
		conditions = append(conditions, eval.Condition{Component: "experiment", Message: err.Error()})
	}
	policy, err := experiment.ParseCouncilPolicy(experiment.Of(assignments, experiment.CouncilThresholdExperiment))
	if err != nil {
		policy = experiment.PolicyControl
		conditions = append(conditions, eval.Condition{Component: "experiment", Message: err.Error()})
	}
	return style, policy, conditions
}

func opinionMap(opinions []expert.Opinion) map[string]expert.Opinion {
	m := make(map[string]expert.Opinion, len(opinions))
	for _, op := range opinions {
		m[op.Expert] = op
	}
	return m
}

// #endregion consult

// #region side-effects

// decide writes a decision log entry. Failures are logged and dropped.
func (o *Orchestrator) decide(ctx context.Context, log *zap.Logger, entry logging.DecisionEntry, details any) {
	if o.deps.Decisions == nil {
		return
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			entry.DetailsJSON = string(b)
		}
	}
	entry.CreatedAt = o.deps.Now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.deps.PersistTimeout)
	defer cancel()
	if err := o.deps.Decisions.LogDecision(ctx, entry); err != nil {
		log.Warn("decision log write failed", zap.String("component", entry.Component), zap.Error(err))
	}
}

// persist saves the consultation on a tracked goroutine. A failed save is
// logged only.
func (o *Orchestrator) persist(log *zap.Logger, req Request, text string, image *expert.Image, resp *Response) {
	if o.deps.Recorder == nil {
		return
	}
	rec := store.Consultation{
		TraceID:        resp.TraceID,
		SubjectID:      req.SubjectID,
		Location:       req.Location,
		InputText:      text,
		Lane:           resp.Lane,
		FinalText:      resp.FinalText,
		Urgency:        resp.Urgency,
		Confidence:     resp.Confidence,
		Opinions:       resp.Opinions,
		Failures:       resp.Failures,
		Experiments:    resp.Experiments,
		Report:         resp.Report,
		ProcessingTime: resp.ProcessingTime,
		CreatedAt:      o.deps.Now().UTC(),
	}
	if image != nil {
		rec.ImageDigest = image.Digest()
		rec.ImageMIME = image.MIMEType
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.deps.PersistTimeout)
		defer cancel()
		if err := o.deps.Recorder.SaveConsultation(ctx, rec); err != nil {
			log.Warn("consultation not stored", zap.Error(err))
			return
		}
		log.Debug("consultation stored")
	}()
}

// #endregion side-effects

// #region feedback

// Feedback stores a rating for a consultation. Storage failures are
// reported in the result, not returned.
func (o *Orchestrator) Feedback(ctx context.Context, req FeedbackRequest) (FeedbackResult, error) {
	return RecordFeedback(ctx, o.deps.Recorder, o.logger, o.deps.Now().UTC(), req)
}

// RecordFeedback is Feedback without a running pipeline. rec may be nil, in
// which case nothing is stored.
func RecordFeedback(ctx context.Context, rec Recorder, logger *zap.Logger, now time.Time, req FeedbackRequest) (FeedbackResult, error) {
	if strings.TrimSpace(req.TraceID) == "" {
		return FeedbackResult{}, fmt.Errorf("%w: trace_id is required", ErrInvalidRequest)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	res := FeedbackResult{TraceID: req.TraceID, Rating: req.Rating, Label: FeedbackLabel(req.Rating)}
	log := logger.With(zap.String("trace_id", req.TraceID))
	log.Info("feedback received", zap.String("label", res.Label))

	if rec == nil {
		return res, nil
	}
	linked, err := rec.SaveFeedback(ctx, store.Feedback{
		TraceID:   req.TraceID,
		SubjectID: req.SubjectID,
		Rating:    req.Rating,
		Label:     res.Label,
		Text:      req.Text,
		CreatedAt: now,
	})
	if err != nil {
		log.Warn("feedback not stored", zap.Error(err))
		return res, nil
	}
	if !linked {
		log.Warn("feedback for unknown consultation")
	}
	res.Stored, res.Linked = true, linked
	return res, nil
}

// #endregion feedback
