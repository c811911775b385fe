package knowledge

// #region imports
import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/carepoint/council-controller/internal/retrieval"
)

// #endregion imports

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS medical_knowledge (
	id                  TEXT PRIMARY KEY,
	title               TEXT NOT NULL,
	content             TEXT NOT NULL,
	category            TEXT,
	urgency_indicators  TEXT,
	red_flags           TEXT,
	embedding           BLOB,
	created_at          TEXT NOT NULL
);
`

// #endregion schema

// #region store

// Store keeps medical reference documents and their embeddings in SQLite.
// It serves as the retrieval.Searcher and retrieval.TextSearcher.
type Store struct {
	db        *sql.DB
	scanLimit int
	logger    *zap.Logger
}

// NewStore creates the medical_knowledge table if needed and returns a store.
func NewStore(db *sql.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate knowledge: %w", err)
	}
	return &Store{db: db, scanLimit: DefaultScanLimit, logger: logger}, nil
}

// SetScanLimit changes how many rows a search reads. Values <= 0 restore the default.
func (s *Store) SetScanLimit(n int) {
	if n <= 0 {
		n = DefaultScanLimit
	}
	s.scanLimit = n
}

// #endregion store

// #region ingest

// LoadFile parses a YAML seed file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for i, e := range f.Documents {
		if strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.Content) == "" {
			return nil, fmt.Errorf("seed %s: document %d needs title and content", path, i)
		}
	}
	return f.Documents, nil
}

// Ingest upserts entries, embedding each one when embedder is non-nil.
// Entries without an ID get a fresh UUID. Returns the number stored.
func (s *Store) Ingest(ctx context.Context, entries []Entry, embedder Embedder) (int, error) {
	stored := 0
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		var vec []float32
		if embedder != nil {
			v, err := embedder.Embed(ctx, e.Title+"\n"+e.Content)
			if err != nil {
				return stored, fmt.Errorf("embed %s: %w", e.ID, err)
			}
			vec = v
		}
		if err := s.Upsert(ctx, e, vec); err != nil {
			return stored, err
		}
		stored++
	}
	s.logger.Info("knowledge ingested", zap.Int("documents", stored), zap.Bool("embedded", embedder != nil))
	return stored, nil
}

// Upsert stores one entry. A nil vec leaves the row without an embedding.
func (s *Store) Upsert(ctx context.Context, e Entry, vec []float32) error {
	indicators, err := json.Marshal(e.UrgencyIndicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}
	flags, err := json.Marshal(e.RedFlags)
	if err != nil {
		return fmt.Errorf("marshal red flags: %w", err)
	}
	var blob any
	if len(vec) > 0 {
		blob = encodeVector(vec)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO medical_knowledge (id, title, content, category, urgency_indicators, red_flags, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			urgency_indicators = excluded.urgency_indicators,
			red_flags = excluded.red_flags,
			embedding = excluded.embedding`,
		e.ID, e.Title, e.Content, e.Category, string(indicators), string(flags), blob,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert knowledge %s: %w", e.ID, err)
	}
	return nil
}

// ClearEmbeddings drops every stored vector so the next ingest re-embeds.
func (s *Store) ClearEmbeddings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE medical_knowledge SET embedding = NULL WHERE embedding IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("clear embeddings: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of documents and how many carry an embedding.
func (s *Store) Count(ctx context.Context) (total, embedded int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM medical_knowledge`,
	).Scan(&total, &embedded)
	return total, embedded, err
}

// #endregion ingest

// #region search

type row struct {
	doc retrieval.Document
	vec []float32
}

// Search compares the query vector against up to scanLimit stored vectors
// and returns the k most similar documents, best first.
func (s *Store) Search(ctx context.Context, embedding []float32, k int) ([]retrieval.Document, error) {
	rows, err := s.scan(ctx, true)
	if err != nil {
		return nil, err
	}
	docs := make([]retrieval.Document, 0, len(rows))
	for _, r := range rows {
		r.doc.Similarity = cosine(embedding, r.vec)
		docs = append(docs, r.doc)
	}
	return topK(docs, k), nil
}

// SearchText ranks documents by keyword overlap with the query.
func (s *Store) SearchText(ctx context.Context, text string, k int) ([]retrieval.Document, error) {
	query := tokenize(text)
	if len(query) == 0 {
		return nil, nil
	}
	rows, err := s.scan(ctx, false)
	if err != nil {
		return nil, err
	}
	var docs []retrieval.Document
	for _, r := range rows {
		score := overlap(query, tokenize(r.doc.Title+" "+r.doc.Content+" "+strings.Join(r.doc.UrgencyIndicators, " ")))
		if score == 0 {
			continue
		}
		r.doc.Similarity = score
		docs = append(docs, r.doc)
	}
	return topK(docs, k), nil
}

func (s *Store) scan(ctx context.Context, embeddedOnly bool) ([]row, error) {
	q := `SELECT id, title, content, urgency_indicators, red_flags, embedding FROM medical_knowledge`
	if embeddedOnly {
		q += ` WHERE embedding IS NOT NULL`
	}
	q += ` ORDER BY id LIMIT ?`

	rs, err := s.db.QueryContext(ctx, q, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan knowledge: %w", err)
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		var (
			r                 row
			indicators, flags sql.NullString
			blob              []byte
		)
		if err := rs.Scan(&r.doc.ID, &r.doc.Title, &r.doc.Content, &indicators, &flags, &blob); err != nil {
			return nil, fmt.Errorf("scan knowledge row: %w", err)
		}
		if indicators.Valid {
			_ = json.Unmarshal([]byte(indicators.String), &r.doc.UrgencyIndicators)
		}
		if flags.Valid {
			_ = json.Unmarshal([]byte(flags.String), &r.doc.RedFlags)
		}
		r.vec = decodeVector(blob)
		out = append(out, r)
	}
	return out, rs.Err()
}

func topK(docs []retrieval.Document, k int) []retrieval.Document {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Similarity > docs[j].Similarity
	})
	if k > 0 && len(docs) > k {
		docs = docs[:k]
	}
	return docs
}

// #endregion search

// #region vector-math

// cosine returns 0 for mismatched dimensions or zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// #endregion vector-math
