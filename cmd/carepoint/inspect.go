package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/carepoint/council-controller/internal/logging"
	"github.com/carepoint/council-controller/internal/store"
	"github.com/carepoint/council-controller/internal/triage"
)

var inspectFlags struct {
	subject string
	last    int
	since   time.Duration
	jsonOut bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read stored consultations and analytics",
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent consultations, newest first",
	RunE:  runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show TRACE_ID",
	Short: "Show one consultation with its decisions and feedback",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var urgencyCmd = &cobra.Command{
	Use:   "urgency",
	Short: "Count consultations per urgency level",
	RunE:  runUrgency,
}

var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "Report how often council members agreed",
	RunE:  runConsensus,
}

func init() {
	pf := inspectCmd.PersistentFlags()
	pf.BoolVar(&inspectFlags.jsonOut, "json", false, "output as JSON instead of a table")

	historyCmd.Flags().StringVar(&inspectFlags.subject, "subject", "", "only this subject's consultations")
	historyCmd.Flags().IntVar(&inspectFlags.last, "last", 20, "show N most recent consultations")
	urgencyCmd.Flags().DurationVar(&inspectFlags.since, "since", 7*24*time.Hour, "look back this far")
	consensusCmd.Flags().DurationVar(&inspectFlags.since, "since", 7*24*time.Hour, "look back this far")

	inspectCmd.AddCommand(historyCmd, showCmd, urgencyCmd, consensusCmd)
}

// #region history

type historyRow struct {
	TraceID    string         `json:"trace_id"`
	SubjectID  string         `json:"subject_id"`
	Lane       triage.Lane    `json:"lane"`
	Urgency    triage.Urgency `json:"urgency"`
	Confidence float64        `json:"confidence"`
	Rating     *int           `json:"feedback_rating,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var cs []store.Consultation
	if inspectFlags.subject != "" {
		cs, err = a.store.History(cmd.Context(), inspectFlags.subject, inspectFlags.last)
	} else {
		cs, err = a.store.ListConsultations(cmd.Context(), inspectFlags.last)
	}
	if err != nil {
		return err
	}

	rows := make([]historyRow, len(cs))
	for i, c := range cs {
		rows[i] = historyRow{
			TraceID:    c.TraceID,
			SubjectID:  c.SubjectID,
			Lane:       c.Lane,
			Urgency:    c.Urgency,
			Confidence: c.Confidence,
			Rating:     c.FeedbackRating,
			CreatedAt:  c.CreatedAt.Format(time.RFC3339),
		}
	}

	out := cmd.OutOrStdout()
	if inspectFlags.jsonOut {
		return writeJSON(out, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no consultations found")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %-10s  %-8s  %-9s  %-5s  %-6s  %s\n",
		"Trace", "Subject", "Lane", "Urgency", "Conf", "Rating", "Created")
	for _, r := range rows {
		rating := "-"
		if r.Rating != nil {
			rating = fmt.Sprintf("%d", *r.Rating)
		}
		fmt.Fprintf(out, "%-36s  %-10s  %-8s  %-9s  %.2f   %-6s  %s\n",
			r.TraceID, r.SubjectID, r.Lane, r.Urgency, r.Confidence, rating, r.CreatedAt)
	}
	return nil
}

// #endregion history

// #region show

type detail struct {
	Consultation store.Consultation      `json:"consultation"`
	Decisions    []logging.DecisionEntry `json:"decisions"`
	Feedback     []store.Feedback        `json:"feedback"`
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	traceID := args[0]
	c, err := a.store.GetConsultation(ctx, traceID)
	if err != nil {
		return err
	}
	decisions, err := logging.NewDecisionLog(a.store.DB()).ListDecisions(ctx, traceID)
	if err != nil {
		return err
	}
	feedback, err := a.store.ListFeedback(ctx, traceID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if inspectFlags.jsonOut {
		return writeJSON(out, detail{Consultation: c, Decisions: decisions, Feedback: feedback})
	}

	fmt.Fprintf(out, "Trace:      %s\n", c.TraceID)
	fmt.Fprintf(out, "Subject:    %s (%s)\n", c.SubjectID, c.Location)
	fmt.Fprintf(out, "Lane:       %s\n", c.Lane)
	fmt.Fprintf(out, "Urgency:    %s (confidence %.2f)\n", c.Urgency, c.Confidence)
	fmt.Fprintf(out, "Took:       %s\n", c.ProcessingTime.Round(time.Millisecond))
	fmt.Fprintf(out, "Input:      %s\n", c.InputText)
	fmt.Fprintf(out, "Answer:     %s\n", c.FinalText)
	if c.ImageDigest != "" {
		fmt.Fprintf(out, "Image:      %s %s\n", c.ImageMIME, c.ImageDigest)
	}
	for _, e := range c.Experiments {
		fmt.Fprintf(out, "Experiment: %s=%s\n", e.Experiment, e.Variant)
	}
	if len(decisions) > 0 {
		fmt.Fprintf(out, "Decisions:\n")
		for _, d := range decisions {
			fmt.Fprintf(out, "  %-10s %-9s %s\n", d.Component, d.Decision, d.Reason)
		}
	}
	for _, f := range feedback {
		fmt.Fprintf(out, "Feedback:   %s %s\n", f.Label, f.Text)
	}
	return nil
}

// #endregion show

// #region analytics

func runUrgency(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	dist, err := a.store.UrgencyDistribution(cmd.Context(), time.Now().Add(-inspectFlags.since))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if inspectFlags.jsonOut {
		return writeJSON(out, dist)
	}
	for _, u := range triage.Levels {
		fmt.Fprintf(out, "%-9s %d\n", u, dist[u])
	}
	return nil
}

func runConsensus(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.ConsensusStats(cmd.Context(), time.Now().Add(-inspectFlags.since))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if inspectFlags.jsonOut {
		return writeJSON(out, stats)
	}
	fmt.Fprintf(out, "Council consultations: %d\n", stats.TotalConsultations)
	fmt.Fprintf(out, "Unanimous:             %d\n", stats.HighConsensusCount)
	fmt.Fprintf(out, "Consensus rate:        %.3f\n", stats.ConsensusRate)
	return nil
}

// #endregion analytics

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
