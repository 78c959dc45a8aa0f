package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/platform/db"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

const entryColumns = `sequence, id, attempt_id, run_id, record_key, from_state, to_state, outcome, detail, occurred_at, prev_hash, hash`

// SQLiteStore is the default local audit store.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the audit database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	// _txlock=immediate makes every transaction take the write lock at BEGIN,
	// so two processes cannot read the same tail.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping audit sqlite: %w", err)
	}

	migrations, err := fs.Sub(migrationsFS, "migrations/sqlite3")
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if _, err := db.RunMigrations(ctx, sqlDB, goose.DialectSQLite3, migrations); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteTailQuery = `SELECT ` + entryColumns + ` FROM dispute_audit_log ORDER BY sequence DESC LIMIT 1`

func (s *SQLiteStore) Append(ctx context.Context, link LinkFunc) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin audit append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tail, err := sqliteTail(tx.QueryRowContext(ctx, sqliteTailQuery))
	if err != nil {
		return Entry{}, err
	}
	e := link(tail)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dispute_audit_log (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Sequence, e.ID.String(), e.AttemptID.String(), e.RunID, e.RecordKey,
		string(e.FromState), string(e.ToState), string(e.Outcome), e.Detail,
		e.OccurredAt.UTC().Format(time.RFC3339Nano), e.PrevHash, e.Hash,
	); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit audit append: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Last(ctx context.Context) (*Entry, error) {
	return sqliteTail(s.db.QueryRowContext(ctx, sqliteTailQuery))
}

func sqliteTail(row rowScanner) (*Entry, error) {
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) List(ctx context.Context, after int64, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM dispute_audit_log WHERE sequence > ? ORDER BY sequence ASC LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectSQLiteEntries(rows)
}

func (s *SQLiteStore) Dangling(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM dispute_audit_log p
		WHERE p.outcome = 'pending'
		  AND NOT EXISTS (
		      SELECT 1 FROM dispute_audit_log c
		      WHERE c.attempt_id = p.attempt_id AND c.outcome <> 'pending'
		  )
		ORDER BY p.sequence ASC`)
	if err != nil {
		return nil, err
	}
	return collectSQLiteEntries(rows)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(row rowScanner) (Entry, error) {
	var (
		e                         Entry
		id, attemptID, occurredAt string
		from, to, outcome         string
	)
	if err := row.Scan(&e.Sequence, &id, &attemptID, &e.RunID, &e.RecordKey, &from, &to, &outcome, &e.Detail, &occurredAt, &e.PrevHash, &e.Hash); err != nil {
		return Entry{}, err
	}

	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return Entry{}, fmt.Errorf("audit entry %d id: %w", e.Sequence, err)
	}
	if e.AttemptID, err = uuid.Parse(attemptID); err != nil {
		return Entry{}, fmt.Errorf("audit entry %d attempt id: %w", e.Sequence, err)
	}
	if e.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt); err != nil {
		return Entry{}, fmt.Errorf("audit entry %d timestamp: %w", e.Sequence, err)
	}
	e.FromState = domain.State(from)
	e.ToState = domain.State(to)
	e.Outcome = Outcome(outcome)
	return e, nil
}

func collectSQLiteEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
