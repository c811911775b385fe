package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/carepoint/council-controller/internal/council"
	"github.com/carepoint/council-controller/internal/guardrail"
)

var consultFlags struct {
	subject  string
	location string
	text     string
	image    string
	intake   string
	timeout  time.Duration
	jsonOut  bool
}

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Answer one question, or start an interactive session",
	Long: "With --text, --image or --intake, consult answers once and exits.\n" +
		"Without them it reads one question per line until 'quit'.",
	RunE: runConsult,
}

func init() {
	f := consultCmd.Flags()
	f.StringVar(&consultFlags.subject, "subject", "cli", "subject ID used for experiment assignment and history")
	f.StringVar(&consultFlags.location, "location", "unknown", "patient location")
	f.StringVar(&consultFlags.text, "text", "", "question text (one-shot mode)")
	f.StringVar(&consultFlags.image, "image", "", "path to a JPEG or PNG image (one-shot mode)")
	f.StringVar(&consultFlags.intake, "intake", "", "path to a JSON list of {question, answer} pairs (one-shot mode)")
	f.DurationVar(&consultFlags.timeout, "timeout", 60*time.Second, "deadline for one consultation")
	f.BoolVar(&consultFlags.jsonOut, "json", false, "print the full response as JSON")
}

func runConsult(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Wait()

	out := cmd.OutOrStdout()
	if consultFlags.text != "" || consultFlags.image != "" || consultFlags.intake != "" {
		req, err := oneShotRequest()
		if err != nil {
			return err
		}
		return consultOnce(cmd.Context(), orch, req, out)
	}

	fmt.Fprintln(out, "carepoint ready. Type a question (or 'quit' to exit):")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		req := council.Request{SubjectID: consultFlags.subject, Location: consultFlags.location, Text: line}
		if err := consultOnce(cmd.Context(), orch, req, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func oneShotRequest() (council.Request, error) {
	req := council.Request{
		SubjectID: consultFlags.subject,
		Location:  consultFlags.location,
		Text:      consultFlags.text,
	}
	if consultFlags.image != "" {
		data, err := os.ReadFile(consultFlags.image)
		if err != nil {
			return req, fmt.Errorf("read image: %w", err)
		}
		req.Image = base64.StdEncoding.EncodeToString(data)
	}
	if consultFlags.intake != "" {
		data, err := os.ReadFile(consultFlags.intake)
		if err != nil {
			return req, fmt.Errorf("read intake: %w", err)
		}
		if err := json.Unmarshal(data, &req.Conversation); err != nil {
			return req, fmt.Errorf("parse intake %s: %w", consultFlags.intake, err)
		}
	}
	return req, nil
}

func consultOnce(ctx context.Context, orch *council.Orchestrator, req council.Request, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, consultFlags.timeout)
	defer cancel()

	resp, err := orch.Consult(ctx, req)
	var rejected *guardrail.RejectionError
	if errors.As(err, &rejected) {
		fmt.Fprintf(out, "\nAnswer withheld: %s (%s)\n\n", rejected.Check, rejected.Message)
		return nil
	}
	if err != nil {
		return err
	}

	if consultFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResponse(out, resp)
	return nil
}

func printResponse(out io.Writer, resp *council.Response) {
	fmt.Fprintf(out, "\n%s\n\n", resp.FinalText)
	fmt.Fprintf(out, "[%s] lane=%s urgency=%s confidence=%.2f composed_by=%s took=%s\n",
		resp.TraceID, resp.Lane, resp.Urgency, resp.Confidence, resp.ComposedBy,
		resp.ProcessingTime.Round(time.Millisecond))

	names := make([]string, 0, len(resp.Opinions))
	for name := range resp.Opinions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		op := resp.Opinions[name]
		fmt.Fprintf(out, "  %-14s %-9s %.2f (%s)\n", name, op.Urgency, op.Confidence, op.Source)
	}
	for _, f := range resp.Failures {
		fmt.Fprintf(out, "  %-14s failed: %s\n", f.Expert, f.Reason)
	}
	for _, c := range resp.Report.Conditions {
		fmt.Fprintf(out, "  note: %s: %s\n", c.Component, c.Message)
	}
}
