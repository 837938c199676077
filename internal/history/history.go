// Package history persists completed calls to an embedded, write-ahead-log
// SQLite database and answers the two read paths the admin surface needs: a
// paginated, filterable summary list and a single full-detail fetch.
//
// The periodic-flush shape (see retention.go) mirrors
// internal/session.Consolidator; the database/sql + modernc.org/sqlite
// driver idiom (string placeholders, JSON-marshaled blob columns,
// fmt.Errorf wrapping) follows lookatitude-beluga-ai's
// memory/stores/sqlite package. jackc/pgx/v5 already covers the outbound
// dialer's tables; this package uses a different driver because the call
// history database is meant to be a single embedded file the admin surface
// reads directly, not a networked server.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/corvidlabs/voxcore/internal/config"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_history (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id               TEXT NOT NULL UNIQUE,
	caller_number         TEXT NOT NULL,
	called_number         TEXT NOT NULL,
	context_name          TEXT NOT NULL,
	direction             TEXT NOT NULL,
	start_time            TEXT NOT NULL,
	end_time              TEXT NOT NULL,
	duration_seconds      REAL NOT NULL,
	provider_name         TEXT NOT NULL,
	pipeline_components   TEXT,
	conversation_history  TEXT,
	tool_calls            TEXT,
	pre_call_results      TEXT,
	outcome               TEXT NOT NULL,
	transfer_destination  TEXT,
	error_message         TEXT,
	avg_turn_latency_ms   REAL,
	max_turn_latency_ms   REAL,
	total_turns           INTEGER,
	caller_audio_format   TEXT,
	barge_in_count        INTEGER,
	underflow_count       INTEGER
);
CREATE INDEX IF NOT EXISTS idx_call_history_start_time    ON call_history(start_time);
CREATE INDEX IF NOT EXISTS idx_call_history_outcome       ON call_history(outcome);
CREATE INDEX IF NOT EXISTS idx_call_history_context_name  ON call_history(context_name);
CREATE INDEX IF NOT EXISTS idx_call_history_caller_number ON call_history(caller_number);
CREATE INDEX IF NOT EXISTS idx_call_history_called_number ON call_history(called_number);
CREATE INDEX IF NOT EXISTS idx_call_history_provider_name ON call_history(provider_name);
CREATE INDEX IF NOT EXISTS idx_call_history_direction     ON call_history(direction);
`

// Store is the call history database. A Store is safe for concurrent use by
// the Engine (writer) and an admin HTTP handler (reader) at once.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at cfg.Path, puts it
// in WAL mode, and ensures the call_history table and its indexes exist.
func Open(cfg config.HistoryConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = "voxcore_history.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// A single physical connection serializes writers through Go's pool
	// instead of letting modernc.org/sqlite's driver-level busy handler
	// retry lock contention between them.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, used by the admin health checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
