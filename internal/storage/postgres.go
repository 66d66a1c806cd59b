package storage

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// PostgresRepository stores one row per session in Postgres.
type PostgresRepository struct {
	*sqlStore
}

func NewPostgresRepository(connStr string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, persistErr("open", err)
	}

	repo := &PostgresRepository{sqlStore: newSQLStore(db, dollarPlaceholders)}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, persistErr("migrate", err)
	}

	return repo, nil
}

func (r *PostgresRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		average_cadence DOUBLE PRECISION NOT NULL,
		total_steps BIGINT NOT NULL,
		duration DOUBLE PRECISION NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON sessions(timestamp);
	`

	_, err := r.db.Exec(schema)
	return err
}
