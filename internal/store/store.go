package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/triage"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS consultations (
	trace_id         TEXT PRIMARY KEY,
	subject_id       TEXT NOT NULL,
	location         TEXT NOT NULL,
	input_text       TEXT,
	lane             TEXT NOT NULL,
	final_text       TEXT NOT NULL,
	urgency          TEXT NOT NULL,
	confidence       REAL NOT NULL,
	opinions_json    TEXT NOT NULL,
	failures_json    TEXT,
	experiments_json TEXT,
	report_json      TEXT,
	image_digest     TEXT,
	image_mime       TEXT,
	processing_ms    INTEGER NOT NULL,
	feedback_rating  INTEGER,
	feedback_at      TEXT,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consultations_subject ON consultations(subject_id, created_at);
CREATE INDEX IF NOT EXISTS idx_consultations_created ON consultations(created_at);

CREATE TABLE IF NOT EXISTS feedback (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id    TEXT NOT NULL,
	subject_id  TEXT,
	rating      INTEGER NOT NULL,
	label       TEXT NOT NULL,
	text        TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_trace ON feedback(trace_id);

CREATE TABLE IF NOT EXISTS decision_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id     TEXT NOT NULL,
	component    TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reason       TEXT,
	details_json TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_trace ON decision_log(trace_id);
`

// #endregion schema

// #region store-struct
// Store keeps consultations, feedback and the decision log in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (logging, knowledge).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region save-consultation
// SaveConsultation inserts one consultation. CreatedAt defaults to now.
func (s *Store) SaveConsultation(ctx context.Context, c Consultation) error {
	if c.TraceID == "" {
		return errors.New("save consultation: empty trace id")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	opinions, err := json.Marshal(c.Opinions)
	if err != nil {
		return fmt.Errorf("marshal opinions: %w", err)
	}
	failures, err := json.Marshal(c.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}
	experiments, err := json.Marshal(c.Experiments)
	if err != nil {
		return fmt.Errorf("marshal experiments: %w", err)
	}
	report, err := json.Marshal(c.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO consultations (trace_id, subject_id, location, input_text, lane, final_text, urgency,
		 confidence, opinions_json, failures_json, experiments_json, report_json, image_digest, image_mime,
		 processing_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TraceID, c.SubjectID, c.Location, c.InputText, string(c.Lane), c.FinalText, string(c.Urgency),
		c.Confidence, string(opinions), string(failures), string(experiments), string(report),
		nullIfEmpty(c.ImageDigest), nullIfEmpty(c.ImageMIME),
		c.ProcessingTime.Milliseconds(), c.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert consultation %s: %w", c.TraceID, err)
	}
	return nil
}

// #endregion save-consultation

// #region get-consultation
const consultationColumns = `trace_id, subject_id, location, input_text, lane, final_text, urgency, confidence,
	opinions_json, failures_json, experiments_json, report_json, image_digest, image_mime,
	processing_ms, feedback_rating, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanConsultation(row scanner) (Consultation, error) {
	var c Consultation
	var input, failures, experiments, report, digest, mime sql.NullString
	var lane, urgency, opinions, created string
	var ms int64
	var rating sql.NullInt64

	err := row.Scan(&c.TraceID, &c.SubjectID, &c.Location, &input, &lane, &c.FinalText, &urgency, &c.Confidence,
		&opinions, &failures, &experiments, &report, &digest, &mime, &ms, &rating, &created)
	if err != nil {
		return Consultation{}, err
	}

	c.InputText = input.String
	c.Lane = triage.Lane(lane)
	c.Urgency = triage.Urgency(urgency)
	c.ImageDigest = digest.String
	c.ImageMIME = mime.String
	c.ProcessingTime = time.Duration(ms) * time.Millisecond
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	if rating.Valid {
		r := int(rating.Int64)
		c.FeedbackRating = &r
	}

	if err := json.Unmarshal([]byte(opinions), &c.Opinions); err != nil {
		return Consultation{}, fmt.Errorf("unmarshal opinions: %w", err)
	}
	if failures.Valid {
		if err := json.Unmarshal([]byte(failures.String), &c.Failures); err != nil {
			return Consultation{}, fmt.Errorf("unmarshal failures: %w", err)
		}
	}
	if experiments.Valid {
		if err := json.Unmarshal([]byte(experiments.String), &c.Experiments); err != nil {
			return Consultation{}, fmt.Errorf("unmarshal experiments: %w", err)
		}
	}
	if report.Valid {
		if err := json.Unmarshal([]byte(report.String), &c.Report); err != nil {
			return Consultation{}, fmt.Errorf("unmarshal report: %w", err)
		}
	}
	return c, nil
}

// GetConsultation retrieves one consultation by trace ID.
func (s *Store) GetConsultation(ctx context.Context, traceID string) (Consultation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+consultationColumns+` FROM consultations WHERE trace_id = ?`, traceID)
	c, err := scanConsultation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Consultation{}, fmt.Errorf("get consultation %s: %w", traceID, ErrNotFound)
	}
	if err != nil {
		return Consultation{}, fmt.Errorf("get consultation %s: %w", traceID, err)
	}
	return c, nil
}

// #endregion get-consultation

// #region list
// History returns a subject's most recent consultations, newest first.
func (s *Store) History(ctx context.Context, subjectID string, limit int) ([]Consultation, error) {
	return s.query(ctx,
		`SELECT `+consultationColumns+` FROM consultations WHERE subject_id = ?
		 ORDER BY created_at DESC LIMIT ?`, subjectID, limit)
}

// ListConsultations returns the most recent consultations, newest first.
func (s *Store) ListConsultations(ctx context.Context, limit int) ([]Consultation, error) {
	return s.query(ctx,
		`SELECT `+consultationColumns+` FROM consultations ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Consultation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	defer rows.Close()

	var out []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// #endregion list

// #region feedback
// SaveFeedback stores a rating and copies it onto the consultation. linked
// is false when no consultation has the trace ID; the feedback row is kept.
func (s *Store) SaveFeedback(ctx context.Context, f Feedback) (linked bool, err error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	created := f.CreatedAt.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feedback (trace_id, subject_id, rating, label, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		f.TraceID, nullIfEmpty(f.SubjectID), f.Rating, f.Label, nullIfEmpty(f.Text), created)
	if err != nil {
		return false, fmt.Errorf("insert feedback: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE consultations SET feedback_rating = ?, feedback_at = ? WHERE trace_id = ?`,
		f.Rating, created, f.TraceID)
	if err != nil {
		return false, fmt.Errorf("update consultation feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

// ListFeedback returns the feedback left on a consultation, oldest first.
func (s *Store) ListFeedback(ctx context.Context, traceID string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trace_id, subject_id, rating, label, text, created_at FROM feedback
		 WHERE trace_id = ? ORDER BY id ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var f Feedback
		var subject, text sql.NullString
		var created string
		if err := rows.Scan(&f.TraceID, &subject, &f.Rating, &f.Label, &text, &created); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.SubjectID = subject.String
		f.Text = text.String
		f.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, f)
	}
	return out, rows.Err()
}

// #endregion feedback

// #region analytics
// UrgencyDistribution counts consultations per urgency created at or after since.
func (s *Store) UrgencyDistribution(ctx context.Context, since time.Time) (map[triage.Urgency]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT urgency, COUNT(*) FROM consultations WHERE created_at >= ? GROUP BY urgency`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("urgency distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[triage.Urgency]int)
	for rows.Next() {
		var u string
		var n int
		if err := rows.Scan(&u, &n); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		dist[triage.Urgency(u)] = n
	}
	return dist, rows.Err()
}

// ConsensusStats reports how often council consultations since the given
// time had at least three experts agreeing on one urgency.
func (s *Store) ConsensusStats(ctx context.Context, since time.Time) (ConsensusStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT opinions_json FROM consultations WHERE lane = ? AND created_at >= ?`,
		string(triage.LaneCouncil), since.UTC().Format(timeLayout))
	if err != nil {
		return ConsensusStats{}, fmt.Errorf("consensus stats: %w", err)
	}
	defer rows.Close()

	var stats ConsensusStats
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return ConsensusStats{}, fmt.Errorf("scan opinions: %w", err)
		}
		var opinions map[string]expert.Opinion
		if err := json.Unmarshal([]byte(raw), &opinions); err != nil {
			return ConsensusStats{}, fmt.Errorf("unmarshal opinions: %w", err)
		}
		stats.TotalConsultations++
		if unanimous(opinions) {
			stats.HighConsensusCount++
		}
	}
	if err := rows.Err(); err != nil {
		return ConsensusStats{}, err
	}
	if stats.TotalConsultations > 0 {
		rate := float64(stats.HighConsensusCount) / float64(stats.TotalConsultations)
		stats.ConsensusRate = math.Round(rate*1000) / 1000
	}
	return stats, nil
}

func unanimous(opinions map[string]expert.Opinion) bool {
	if len(opinions) < 3 {
		return false
	}
	var first triage.Urgency
	for _, o := range opinions {
		if first == "" {
			first = o.Urgency
		} else if o.Urgency != first {
			return false
		}
	}
	return true
}

// #endregion analytics

// #region helpers
// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
