package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/carepoint/council-controller/internal/replay"
)

var replayFlags struct {
	current bool
}

var replayCmd = &cobra.Command{
	Use:   "replay FIXTURE",
	Short: "Re-check a fixture's answers and compare with the expected actions",
	Long: "replay re-runs the guardrails and performance thresholds over the\n" +
		"recorded answers in a fixture. No model is called. It exits non-zero\n" +
		"when any case diverges from its expected action.",
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayFlags.current, "current-config", false,
		"use the loaded config's guardrails and thresholds instead of the fixture's")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := replay.LoadFixture(args[0])
	if err != nil {
		return err
	}

	config := f.Config.ToReplayConfig()
	if replayFlags.current {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		config = replay.Config{
			Guardrails: cfg.Guardrails,
			Thresholds: cfg.Thresholds,
			Keywords:   cfg.Routing.HighStakesKeywords,
		}
	}

	results, err := replay.Replay(f.ToCases(), config)
	if err != nil {
		return err
	}
	expected := make([]string, len(f.ExpectedResults))
	for i, e := range f.ExpectedResults {
		expected[i] = e.Action
	}

	if diverge := printComparison(cmd.OutOrStdout(), results, expected); diverge > 0 {
		return fmt.Errorf("%d cases diverge from the fixture", diverge)
	}
	return nil
}

// printComparison writes a comparison table and returns the number of
// diverging cases. Results without an expected action count as diverging.
func printComparison(out io.Writer, results []replay.Result, expected []string) int {
	fmt.Fprintf(out, "%-36s| %-9s| %-9s| %s\n", "Trace", "Expected", "Replayed", "Match")
	fmt.Fprintf(out, "%-36s+%-10s+%-10s+%s\n",
		"------------------------------------", "----------", "----------", "------")

	matches := 0
	for i, r := range results {
		exp := "-"
		if i < len(expected) {
			exp = expected[i]
		}
		match := "DIFF"
		if exp == r.Action {
			match = "OK"
			matches++
		}
		fmt.Fprintf(out, "%-36s| %-9s| %-9s| %s", r.TraceID, exp, r.Action, match)
		if match == "DIFF" && r.Reason != "" {
			fmt.Fprintf(out, "  (%s)", r.Reason)
		}
		fmt.Fprintln(out)
	}

	s := replay.Summarize(results)
	fmt.Fprintf(out, "\nSummary: %d total, %d pass, %d warn, %d block, %d critical metrics\n",
		s.Total, s.Passed, s.Warned, s.Blocked, s.Critical)
	diverge := len(results) - matches
	if len(expected) > len(results) {
		diverge += len(expected) - len(results)
	}
	fmt.Fprintf(out, "         %d match, %d diverge\n", matches, diverge)
	return diverge
}
