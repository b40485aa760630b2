package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore records summaries in a SQLite database, one committed row per
// function, together with the run that produced it.
type SQLiteStore struct {
	conn  *sql.DB
	runID string
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS summaries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		summary TEXT NOT NULL,
		run_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
`

// OpenSQLite opens or creates the database at path and registers runID.
func OpenSQLite(ctx context.Context, path, runID string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open summaries database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize summaries schema: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT OR IGNORE INTO runs (id, started_at) VALUES (?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}
	return &SQLiteStore{conn: conn, runID: runID}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT name, summary FROM summaries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, summary string
		if err := rows.Scan(&name, &summary); err != nil {
			return nil, err
		}
		out[name] = summary
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, name, summary string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO summaries (name, summary, run_id, created_at) VALUES (?, ?, ?, ?)`,
		name, summary, s.runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%s: %w", name, ErrDuplicate)
		}
		return fmt.Errorf("insert summary %s: %w", name, err)
	}
	return nil
}

// Records returns all summaries in insertion order.
func (s *SQLiteStore) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT name, summary FROM summaries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.Summary); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
