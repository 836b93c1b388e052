package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tinfoilsh/tinfoil-chat-sub004/migrations"
)

// DB wraps the on-device sqlite handle shared by the record store and the
// keyed-value area.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at dsn, applies pending
// migrations, and returns the handle. Use ":memory:" for an ephemeral store.
func Open(dsn string) (*DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// sqlite serializes writers; a single connection avoids database-locked
	// errors from the driver under concurrent access.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err = migrations.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}

	return &DB{db}, nil
}
