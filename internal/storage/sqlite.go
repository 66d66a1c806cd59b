package storage

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository stores one row per session in a local SQLite file.
type SQLiteRepository struct {
	*sqlStore
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, persistErr("open", err)
	}
	// SQLite allows a single writer; one connection keeps reads from
	// tripping over an open write transaction.
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{sqlStore: newSQLStore(db, nil)}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, persistErr("migrate", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		average_cadence REAL NOT NULL,
		total_steps INTEGER NOT NULL,
		duration REAL NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON sessions(timestamp);
	`

	_, err := r.db.Exec(schema)
	return err
}
