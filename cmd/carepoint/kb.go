package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carepoint/council-controller/internal/knowledge"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the medical knowledge base",
}

var kbLoadCmd = &cobra.Command{
	Use:   "load [SEED_FILE]",
	Short: "Load documents from a YAML seed file and embed them",
	Long: "load upserts every document in the seed file. Without an argument the\n" +
		"config's knowledge.seed_file is used. When the embedder is 'none'\n" +
		"documents are stored for keyword search only.",
	Args: cobra.MaximumNArgs(1),
	RunE: runKBLoad,
}

var kbClearCmd = &cobra.Command{
	Use:   "clear-embeddings",
	Short: "Drop stored embeddings, for example after changing the embedding model",
	RunE:  runKBClear,
}

var kbCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show how many documents are stored and embedded",
	RunE:  runKBCount,
}

func init() {
	kbCmd.AddCommand(kbLoadCmd, kbClearCmd, kbCountCmd)
}

func runKBLoad(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path := a.cfg.Knowledge.SeedFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no seed file given and knowledge.seed_file is empty")
	}
	entries, err := knowledge.LoadFile(path)
	if err != nil {
		return err
	}

	kb, err := a.knowledgeStore()
	if err != nil {
		return err
	}
	emb, err := a.embedder(cmd.Context())
	if err != nil {
		return err
	}
	var embedder knowledge.Embedder
	if emb != nil {
		embedder = emb
	}
	n, err := kb.Ingest(cmd.Context(), entries, embedder)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d of %d documents from %s\n", n, len(entries), path)
	return nil
}

func runKBClear(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	kb, err := a.knowledgeStore()
	if err != nil {
		return err
	}
	n, err := kb.ClearEmbeddings(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d embeddings\n", n)
	return nil
}

func runKBCount(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	kb, err := a.knowledgeStore()
	if err != nil {
		return err
	}
	total, embedded, err := kb.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Documents: %d\nEmbedded:  %d\n", total, embedded)
	return nil
}
