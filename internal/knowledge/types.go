package knowledge

// #region imports
import (
	"context"
)

// #endregion

// #region entry

// Entry is one knowledge base document as written in a seed file.
type Entry struct {
	ID                string   `yaml:"id"`
	Title             string   `yaml:"title"`
	Content           string   `yaml:"content"`
	Category          string   `yaml:"category"`
	UrgencyIndicators []string `yaml:"urgency_indicators"`
	RedFlags          []string `yaml:"red_flags"`
}

// seedFile is the top-level shape of a YAML seed file.
type seedFile struct {
	Documents []Entry `yaml:"documents"`
}

// #endregion

// #region embedder

// Embedder produces document vectors during ingest.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// #endregion

// #region limits

// DefaultScanLimit bounds how many stored vectors one search compares.
const DefaultScanLimit = 100

// #endregion
