// Package store persists knowledge records and the query log in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/faqbot/faqbot/internal/domain"
)

//go:embed schema.sql
var schema string

// DefaultSource labels records added without an explicit provenance.
const DefaultSource = "user"

// bm25 weights per indexed column (id is unindexed): question, answer, tags.
// Tag matches dominate body-text matches at roughly 4:1.
const ftsRank = "bm25(records_fts, 0, 1.0, 1.0, 4.0)"

// Store handles database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: keeps ":memory:" databases coherent across the pool
	// and serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Add creates a new knowledge record. Question and answer must be non-blank;
// tags are lowercased and deduplicated before persisting.
func (s *Store) Add(ctx context.Context, question, answer string, tags []string, source string) (*domain.KnowledgeRecord, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &domain.ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if strings.TrimSpace(answer) == "" {
		return nil, &domain.ValidationError{Field: "answer", Reason: "must not be empty"}
	}
	if source == "" {
		source = DefaultSource
	}

	normalized := NormalizeTags(tags)
	id := uuid.New().String()
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO records (id, question, answer, source, created_at) VALUES (?, ?, ?, ?, ?)",
		id, question, answer, source, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	for _, tag := range normalized {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO record_tags (record_id, tag) VALUES (?, ?)",
			id, tag,
		); err != nil {
			return nil, fmt.Errorf("insert tag %q: %w", tag, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO records_fts (id, question, answer, tags) VALUES (?, ?, ?, ?)",
		id, question, answer, strings.Join(normalized, " "),
	)
	if err != nil {
		return nil, fmt.Errorf("index record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &domain.KnowledgeRecord{
		ID:        id,
		Question:  question,
		Answer:    answer,
		Tags:      normalized,
		Source:    source,
		CreatedAt: now,
	}, nil
}

// Get retrieves a record by ID with its tags
func (s *Store) Get(ctx context.Context, id string) (*domain.KnowledgeRecord, error) {
	var rec domain.KnowledgeRecord
	err := s.db.QueryRowContext(ctx,
		"SELECT id, question, answer, source, created_at FROM records WHERE id = ?",
		id,
	).Scan(&rec.ID, &rec.Question, &rec.Answer, &rec.Source, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	tags, err := s.tagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Tags = tags

	return &rec, nil
}

// List returns recent records with pagination
func (s *Store) List(ctx context.Context, limit, offset int) ([]domain.KnowledgeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, question, answer, source, created_at FROM records ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	return s.collectRecords(ctx, rows)
}

// Count returns the total number of records
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// TextSearch runs a weighted full-text search, best match first. Queries that
// match nothing (or contain no searchable terms) return an empty slice.
func (s *Store) TextSearch(ctx context.Context, query string) ([]domain.ScoredRecord, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.question, r.answer, r.source, r.created_at, -`+ftsRank+` AS score
		FROM records_fts
		JOIN records r ON r.id = records_fts.id
		WHERE records_fts MATCH ?
		ORDER BY `+ftsRank,
		match,
	)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var results []domain.ScoredRecord
	for rows.Next() {
		var sr domain.ScoredRecord
		if err := rows.Scan(&sr.ID, &sr.Question, &sr.Answer, &sr.Source, &sr.CreatedAt, &sr.Score); err != nil {
			return nil, fmt.Errorf("scan scored record: %w", err)
		}
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("text search rows: %w", err)
	}

	for i := range results {
		tags, err := s.tagsFor(ctx, results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].Tags = tags
	}

	return results, nil
}

// RegexSearch treats the query as a literal and matches it case-insensitively
// as a substring of question or answer. Metacharacters have no special
// meaning; "C++" matches the text "C++".
func (s *Store) RegexSearch(ctx context.Context, query string) ([]domain.KnowledgeRecord, error) {
	if query == "" {
		return nil, nil
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer, source, created_at FROM records
		WHERE question LIKE ? ESCAPE '\' OR answer LIKE ? ESCAPE '\'
		ORDER BY rowid`,
		pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("regex search: %w", err)
	}
	defer rows.Close()

	return s.collectRecords(ctx, rows)
}

// TagSearch returns records whose tag set intersects the given tags.
// Input tags are lowercased; an empty input returns no records.
func (s *Store) TagSearch(ctx context.Context, tags []string) ([]domain.KnowledgeRecord, error) {
	normalized := NormalizeTags(tags)
	if len(normalized) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(normalized))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(normalized))
	for i, tag := range normalized {
		args[i] = tag
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT r.id, r.question, r.answer, r.source, r.created_at
		FROM records r
		JOIN record_tags rt ON rt.record_id = r.id
		WHERE rt.tag IN (`+placeholders+`)
		ORDER BY r.rowid`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("tag search: %w", err)
	}
	defer rows.Close()

	return s.collectRecords(ctx, rows)
}

// InsertLogEntry appends one entry to the query log
func (s *Store) InsertLogEntry(ctx context.Context, entry domain.QueryLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var recordID any
	if entry.RecordID != "" {
		recordID = entry.RecordID
	}
	var score any
	if entry.Score != nil {
		score = *entry.Score
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO query_log (id, query, record_id, score, matched_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.Query, recordID, score, string(entry.MatchedBy), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// TopQueries groups log entries by literal query text, most frequent first
func (s *Store) TopQueries(ctx context.Context, limit int) ([]domain.QueryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query, COUNT(*) AS n FROM query_log
		GROUP BY query
		ORDER BY n DESC, query
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top queries: %w", err)
	}
	defer rows.Close()

	var counts []domain.QueryCount
	for rows.Next() {
		var qc domain.QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count); err != nil {
			return nil, fmt.Errorf("scan query count: %w", err)
		}
		counts = append(counts, qc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top queries rows: %w", err)
	}

	return counts, nil
}

// NormalizeTags lowercases, trims and deduplicates tags, preserving first
// occurrence order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// ftsQuery builds an FTS5 MATCH expression from free text. Each whitespace
// token is quoted so user input never hits the FTS5 query parser, and tokens
// are ORed: any term may match. Tokens with nothing the tokenizer would keep
// (pure punctuation) are skipped.
func ftsQuery(query string) string {
	var terms []string
	for _, f := range strings.Fields(query) {
		if !strings.ContainsFunc(f, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}

// escapeLike escapes LIKE wildcards so the query matches literally
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func (s *Store) collectRecords(ctx context.Context, rows *sql.Rows) ([]domain.KnowledgeRecord, error) {
	var records []domain.KnowledgeRecord
	for rows.Next() {
		var rec domain.KnowledgeRecord
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer, &rec.Source, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	for i := range records {
		tags, err := s.tagsFor(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Tags = tags
	}

	return records, nil
}

func (s *Store) tagsFor(ctx context.Context, recordID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT tag FROM record_tags WHERE record_id = ? ORDER BY tag",
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("get record tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
