package usage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS token_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	model TEXT NOT NULL,
	session_type TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0
)`

// Entry is one row of the per-call usage log
type Entry struct {
	ID               int64
	Timestamp        time.Time
	Model            string
	SessionType      string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Summary aggregates a group of entries
type Summary struct {
	Key              string // model or session type; empty for the grand total
	Calls            int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Store is the SQLite-backed usage log
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the usage database at path.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, skerrors.UsageStoreFailed("open", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, skerrors.UsageStoreFailed("open", err)
	}
	// One writer; panels record from their own goroutines.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, skerrors.UsageStoreFailed("migrate", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends one entry. A zero Timestamp means now and a zero
// TotalTokens is filled from prompt plus completion.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.TotalTokens == 0 {
		e.TotalTokens = e.PromptTokens + e.CompletionTokens
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_usage (timestamp, model, session_type, prompt_tokens, completion_tokens, total_tokens)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Timestamp.Format(time.RFC3339Nano), e.Model, e.SessionType, e.PromptTokens, e.CompletionTokens, e.TotalTokens)
	if err != nil {
		return skerrors.UsageStoreFailed("insert", err)
	}
	return nil
}

// Totals sums every entry
func (s *Store) Totals(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(total_tokens), 0)
		FROM token_usage`).Scan(&sum.Calls, &sum.PromptTokens, &sum.CompletionTokens, &sum.TotalTokens)
	if err != nil {
		return Summary{}, skerrors.UsageStoreFailed("totals", err)
	}
	return sum, nil
}

// BySessionType groups totals by session type (default, chat, agent)
func (s *Store) BySessionType(ctx context.Context) ([]Summary, error) {
	return s.grouped(ctx, "session_type")
}

// ByModel groups totals by model
func (s *Store) ByModel(ctx context.Context) ([]Summary, error) {
	return s.grouped(ctx, "model")
}

func (s *Store) grouped(ctx context.Context, column string) ([]Summary, error) {
	// column is one of two constants above, never user input
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		FROM token_usage GROUP BY `+column+` ORDER BY SUM(total_tokens) DESC`)
	if err != nil {
		return nil, skerrors.UsageStoreFailed("group by "+column, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Key, &sum.Calls, &sum.PromptTokens, &sum.CompletionTokens, &sum.TotalTokens); err != nil {
			return nil, skerrors.UsageStoreFailed("scan", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Recent returns the newest entries first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, model, session_type, prompt_tokens, completion_tokens, total_tokens
		FROM token_usage ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, skerrors.UsageStoreFailed("recent", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Model, &e.SessionType, &e.PromptTokens, &e.CompletionTokens, &e.TotalTokens); err != nil {
			return nil, skerrors.UsageStoreFailed("scan", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
