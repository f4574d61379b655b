// Package store provides SQLite-backed local message persistence for Ember.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/emberchat/ember/internal/logging"
)

// DB wraps the SQLite connection used by the local message store.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the message database at path.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", path)
	return open(dsn, false)
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory() (*DB, error) {
	return open("file::memory:?_pragma=foreign_keys(ON)", true)
}

func open(dsn string, singleConn bool) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open message database: %w", err)
	}
	if singleConn {
		// Each pooled connection to an in-memory database would otherwise
		// see its own empty copy.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to message database: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		logger: logging.Component("store"),
	}
	if err := db.ensureSchema(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) ensureSchema(ctx context.Context) error {
	statements := []string{
		// date and edit_date are unix milliseconds so range queries and
		// ORDER BY compare correctly.
		`CREATE TABLE IF NOT EXISTS messages (
			peer_kind TEXT NOT NULL,
			peer_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			global_id INTEGER NOT NULL DEFAULT 0,
			random_id TEXT NOT NULL DEFAULT '',
			from_id INTEGER NOT NULL,
			date INTEGER NOT NULL,
			out INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			status TEXT,
			edit_date INTEGER,
			PRIMARY KEY (peer_kind, peer_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS messages_peer_date_idx ON messages(peer_kind, peer_id, date, message_id)`,
		`CREATE INDEX IF NOT EXISTS messages_global_idx ON messages(global_id) WHERE global_id != 0`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize message schema: %w", err)
		}
	}
	return nil
}
