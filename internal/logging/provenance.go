package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes a decision entry to the decision_log table.
func LogDecision(ctx context.Context, db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO decision_log (trace_id, component, decision, reason, details_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.TraceID,
		entry.Component,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.DetailsJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region decision-log
// DecisionLog binds LogDecision to one database.
type DecisionLog struct {
	db *sql.DB
}

// NewDecisionLog returns a DecisionLog writing to db.
func NewDecisionLog(db *sql.DB) *DecisionLog {
	return &DecisionLog{db: db}
}

// LogDecision writes entry.
func (l *DecisionLog) LogDecision(ctx context.Context, entry DecisionEntry) error {
	return LogDecision(ctx, l.db, entry)
}

// ListDecisions returns the entries recorded for a trace, oldest first.
func (l *DecisionLog) ListDecisions(ctx context.Context, traceID string) ([]DecisionEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT trace_id, component, decision, reason, details_json, created_at
		 FROM decision_log WHERE trace_id = ? ORDER BY id ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var entries []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var reason, details sql.NullString
		var created string
		if err := rows.Scan(&e.TraceID, &e.Component, &e.Decision, &reason, &details, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Reason = reason.String
		e.DetailsJSON = details.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion decision-log

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
