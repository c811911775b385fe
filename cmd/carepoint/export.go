package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carepoint/council-controller/internal/replay"
)

var exportFlags struct {
	out         string
	last        int
	description string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write recent consultations as a replay fixture",
	Long: "export snapshots the most recent consultations together with the\n" +
		"action today's guardrails and thresholds take on each, so a later\n" +
		"'carepoint replay' shows what a settings change would alter.",
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.out, "out", "", "output fixture JSON path (required)")
	f.IntVar(&exportFlags.last, "last", 20, "number of most recent consultations to export")
	f.StringVar(&exportFlags.description, "description", "", "fixture description")

	_ = exportCmd.MarkFlagRequired("out")
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cs, err := a.store.ListConsultations(cmd.Context(), exportFlags.last)
	if err != nil {
		return err
	}
	if len(cs) == 0 {
		return fmt.Errorf("no consultations in %s", a.cfg.Database)
	}
	// Oldest first reads naturally in a fixture.
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}

	desc := exportFlags.description
	if desc == "" {
		desc = fmt.Sprintf("last %d consultations from %s", len(cs), a.cfg.Database)
	}
	f, err := replay.FromConsultations(desc, cs, replay.FixtureConfig{
		GuardrailMode:  a.cfg.Guardrails.Mode,
		MaxWords:       a.cfg.Guardrails.MaxWords,
		ActionKeywords: a.cfg.Guardrails.ActionKeywords,
		Keywords:       a.cfg.Routing.HighStakesKeywords,
		Thresholds:     a.cfg.Thresholds,
	})
	if err != nil {
		return err
	}
	if err := f.Write(exportFlags.out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d cases to %s\n", len(f.Cases), exportFlags.out)
	return nil
}
