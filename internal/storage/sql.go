package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hperssn/cadence/internal/domain"
)

const selectColumns = `id, timestamp, average_cadence, total_steps, duration, created_at, updated_at`

// sqlStore holds the query logic shared by the SQLite and Postgres
// repositories. Queries are written with ? placeholders and rebound per
// dialect.
type sqlStore struct {
	db   *sql.DB
	mu   sync.Mutex
	bind func(string) string
	now  func() time.Time
}

func newSQLStore(db *sql.DB, bind func(string) string) *sqlStore {
	if bind == nil {
		bind = func(q string) string { return q }
	}
	return &sqlStore{db: db, bind: bind, now: time.Now}
}

// dollarPlaceholders rewrites ? placeholders to $1, $2, ...
func dollarPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	var updatedAt sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.Timestamp,
		&rec.AverageCadence,
		&rec.TotalSteps,
		&rec.Duration,
		&rec.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	rec.UpdatedAt = updatedAt.String
	return rec, nil
}

func (s *sqlStore) Create(ctx context.Context, in domain.SessionInput) (domain.SessionRecord, error) {
	rec, err := domain.NewRecord(in, s.now())
	if err != nil {
		return domain.SessionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sessions (id, timestamp, average_cadence, total_steps, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, s.bind(query),
		rec.ID,
		rec.Timestamp,
		rec.AverageCadence,
		rec.TotalSteps,
		rec.Duration,
		rec.CreatedAt,
	)
	if err != nil {
		return domain.SessionRecord{}, persistErr("create", err)
	}
	return rec, nil
}

func (s *sqlStore) ReadAll(ctx context.Context) ([]domain.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM sessions ORDER BY seq`)
	if err != nil {
		return nil, persistErr("read", err)
	}
	defer rows.Close()

	records := []domain.SessionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, persistErr("read", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("read", err)
	}
	return records, nil
}

func (s *sqlStore) ReadByID(ctx context.Context, id string) (domain.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+selectColumns+` FROM sessions WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SessionRecord{}, persistErr("read", err)
	}
	return rec, nil
}

func (s *sqlStore) Update(ctx context.Context, id string, patch domain.SessionPatch) (domain.SessionRecord, error) {
	if err := patch.Validate(); err != nil {
		return domain.SessionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated domain.SessionRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.bind(`SELECT `+selectColumns+` FROM sessions WHERE id = ?`), id)
		current, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		updated, err = patch.Apply(current, s.now())
		if err != nil {
			return err
		}

		query := `
			UPDATE sessions
			SET timestamp = ?, average_cadence = ?, total_steps = ?, duration = ?, updated_at = ?
			WHERE id = ?
		`
		_, err = tx.ExecContext(ctx, s.bind(query),
			updated.Timestamp,
			updated.AverageCadence,
			updated.TotalSteps,
			updated.Duration,
			updated.UpdatedAt,
			id,
		)
		return err
	})
	if err != nil {
		return domain.SessionRecord{}, classify("update", err)
	}
	return updated, nil
}

func (s *sqlStore) Delete(ctx context.Context, id string) (domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted domain.SessionRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.bind(`SELECT `+selectColumns+` FROM sessions WHERE id = ?`), id)
		rec, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		deleted = rec

		_, err = tx.ExecContext(ctx, s.bind(`DELETE FROM sessions WHERE id = ?`), id)
		return err
	})
	if err != nil {
		return domain.SessionRecord{}, classify("delete", err)
	}
	return deleted, nil
}

func (s *sqlStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// classify passes domain errors through and wraps everything else.
func classify(op string, err error) error {
	var verr *domain.ValidationError
	if errors.Is(err, domain.ErrNotFound) || errors.As(err, &verr) {
		return err
	}
	return persistErr(op, err)
}
