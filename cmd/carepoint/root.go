package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config   string
	db       string
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "carepoint",
	Short: "Medical consultation orchestration controller",
	Long: "carepoint routes a patient's question to one model or a council of\n" +
		"models, composes a single answer, checks it against safety guardrails\n" +
		"and records the consultation for later inspection and replay.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", "", "YAML config file (defaults apply when empty)")
	pf.StringVar(&rootFlags.db, "db", "", "SQLite database path (overrides config and CAREPOINT_DB)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(consultCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
