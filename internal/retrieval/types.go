package retrieval

// #region imports
import (
	"context"
	"time"
)

// #endregion

// #region interfaces

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher returns the k most similar documents for a query vector.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, k int) ([]Document, error)
}

// TextSearcher is used when no Embedder is configured.
type TextSearcher interface {
	SearchText(ctx context.Context, text string, k int) ([]Document, error)
}

// #endregion

// #region config

// Config holds limits for knowledge retrieval.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	TopK          int           `yaml:"top_k"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxContentLen int           `yaml:"max_content_len"` // runes per document
	MinSimilarity float64       `yaml:"min_similarity"`
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		TopK:          3,
		Timeout:       10 * time.Second,
		MaxContentLen: 500,
		MinSimilarity: 0,
	}
}

// #endregion

// #region document

// Document is one medical reference returned by a search.
type Document struct {
	ID                string   `json:"id" yaml:"id"`
	Title             string   `json:"title" yaml:"title"`
	Content           string   `json:"content" yaml:"content"`
	Similarity        float64  `json:"similarity" yaml:"-"`
	UrgencyIndicators []string `json:"urgency_indicators,omitempty" yaml:"urgency_indicators"`
	RedFlags          []string `json:"red_flags,omitempty" yaml:"red_flags"`
}

// #endregion

// #region result

// Result is what a retrieval produced. An empty Context means the experts
// run without references.
type Result struct {
	Documents []Document
	Context   string
	Reason    string
	Degraded  bool // a dependency failed or timed out
}

// #endregion
