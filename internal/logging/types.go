package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table.
type DecisionEntry struct {
	TraceID     string    `json:"trace_id"`
	Component   string    `json:"component"` // "router" | "expert" | "synthesis" | "guardrail" | "monitor"
	Decision    string    `json:"decision"`  // "route" | "partial" | "abort" | "degraded" | "reject" | "alert"
	Reason      string    `json:"reason,omitempty"`
	DetailsJSON string    `json:"details_json,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// #endregion decision-entry

// #region decisions
// Decision values written by the consultation pipeline.
const (
	DecisionRoute    = "route"
	DecisionPartial  = "partial"
	DecisionAbort    = "abort"
	DecisionDegraded = "degraded"
	DecisionReject   = "reject"
	DecisionAlert    = "alert"
)

// #endregion decisions
