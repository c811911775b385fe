package retrieval

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// #endregion

// #region retriever

// Retriever fetches reference documents relevant to a patient's text.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	text     TextSearcher
	config   Config
	logger   *zap.Logger
}

// NewRetriever creates a retriever. embedder may be nil, in which case the
// searcher must also implement TextSearcher or retrieval is skipped.
func NewRetriever(embedder Embedder, searcher Searcher, config Config, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{embedder: embedder, searcher: searcher, config: config, logger: logger}
	if ts, ok := searcher.(TextSearcher); ok {
		r.text = ts
	}
	return r
}

// #endregion

// #region retrieve

type searchOutcome struct {
	docs []Document
	err  error
}

// Retrieve never fails. Errors, timeouts and empty searches all yield a
// Result with no context and a reason.
func (r *Retriever) Retrieve(ctx context.Context, text string) Result {
	if !r.config.Enabled {
		return Result{Reason: "retrieval disabled"}
	}
	if strings.TrimSpace(text) == "" {
		return Result{Reason: "no text to search"}
	}
	if r.searcher == nil || (r.embedder == nil && r.text == nil) {
		return Result{Reason: "no knowledge source configured"}
	}

	timeout := r.config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so the search goroutine never blocks after a timeout.
	done := make(chan searchOutcome, 1)
	go func() {
		docs, err := r.search(ctx, text)
		done <- searchOutcome{docs: docs, err: err}
	}()

	var out searchOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = searchOutcome{err: ctx.Err()}
	}

	if out.err != nil {
		reason := fmt.Sprintf("search failed: %v", out.err)
		if errors.Is(out.err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("search timed out after %s", timeout)
		}
		r.logger.Warn("knowledge retrieval degraded", zap.String("reason", reason))
		return Result{Reason: reason, Degraded: true}
	}

	docs := r.consistencyCheck(out.docs)
	if len(docs) == 0 {
		return Result{Reason: fmt.Sprintf("no usable documents (searched=%d)", len(out.docs))}
	}

	r.logger.Debug("knowledge retrieved", zap.Int("documents", len(docs)))
	return Result{
		Documents: docs,
		Context:   FormatContext(docs),
		Reason:    fmt.Sprintf("retrieved %d documents (searched=%d)", len(docs), len(out.docs)),
	}
}

func (r *Retriever) search(ctx context.Context, text string) ([]Document, error) {
	k := r.config.TopK
	if k <= 0 {
		k = DefaultConfig().TopK
	}
	if r.embedder == nil {
		return r.text.SearchText(ctx, text, k)
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("embed: empty vector")
	}
	return r.searcher.Search(ctx, vec, k)
}

// #endregion

// #region consistency-check

// consistencyCheck drops documents with empty content, repeated IDs, or a
// similarity under the floor, and truncates overlong content.
func (r *Retriever) consistencyCheck(docs []Document) []Document {
	seen := make(map[string]bool)
	var valid []Document
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		if d.Similarity < r.config.MinSimilarity {
			continue
		}
		if d.ID != "" {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
		}
		d.Content = truncateRunes(d.Content, r.config.MaxContentLen)
		valid = append(valid, d)
	}
	return valid
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// #endregion

// #region format

// FormatContext renders documents as numbered references for an expert prompt.
func FormatContext(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Medical References]\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "%d. %s (similarity %.2f)\n", i+1, d.Title, d.Similarity)
		if len(d.UrgencyIndicators) > 0 {
			fmt.Fprintf(&b, "   Urgency indicators: %s\n", strings.Join(d.UrgencyIndicators, ", "))
		}
		if len(d.RedFlags) > 0 {
			fmt.Fprintf(&b, "   Red flags: %s\n", strings.Join(d.RedFlags, ", "))
		}
		fmt.Fprintf(&b, "   %s\n", d.Content)
	}
	return b.String()
}

// #endregion
