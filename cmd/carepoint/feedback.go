package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/carepoint/council-controller/internal/council"
)

var feedbackFlags struct {
	trace   string
	subject string
	rating  int
	text    string
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Rate a previous consultation (1 positive, 0 negative)",
	RunE:  runFeedback,
}

func init() {
	f := feedbackCmd.Flags()
	f.StringVar(&feedbackFlags.trace, "trace", "", "trace ID of the consultation (required)")
	f.StringVar(&feedbackFlags.subject, "subject", "cli", "subject ID giving the rating")
	f.IntVar(&feedbackFlags.rating, "rating", 1, "1 positive, 0 negative, other values kept as rating_N")
	f.StringVar(&feedbackFlags.text, "text", "", "free-text comment")

	_ = feedbackCmd.MarkFlagRequired("trace")
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := council.RecordFeedback(cmd.Context(), a.store, a.logger.Named("feedback"), time.Now().UTC(), council.FeedbackRequest{
		TraceID:   feedbackFlags.trace,
		SubjectID: feedbackFlags.subject,
		Rating:    feedbackFlags.rating,
		Text:      feedbackFlags.text,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Trace:  %s\n", res.TraceID)
	fmt.Fprintf(out, "Label:  %s\n", res.Label)
	fmt.Fprintf(out, "Stored: %t\n", res.Stored)
	fmt.Fprintf(out, "Linked: %t\n", res.Linked)
	if !res.Stored {
		return fmt.Errorf("feedback for %s was not stored", res.TraceID)
	}
	return nil
}
