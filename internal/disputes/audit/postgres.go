package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore keeps the trail in a shared Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies the audit migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, config.DSN(dsn), db.PoolOptions{MaxConns: 4})
	if err != nil {
		return nil, fmt.Errorf("connect audit database: %w", err)
	}

	migrations, err := fs.Sub(migrationsFS, "migrations/postgres")
	if err != nil {
		pool.Close()
		return nil, err
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	_, err = db.RunMigrations(ctx, sqlDB, goose.DialectPostgres, migrations)
	_ = sqlDB.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// appendLockKey is the transaction-scoped advisory lock held while the tail is read and extended.
const appendLockKey int64 = 0x6469737075746573

const pgTailQuery = `SELECT ` + entryColumns + ` FROM dispute_audit_log ORDER BY sequence DESC LIMIT 1`

func (s *PostgresStore) Append(ctx context.Context, link LinkFunc) (Entry, error) {
	var e Entry
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
			return fmt.Errorf("lock audit tail: %w", err)
		}

		tail, err := pgTail(tx.QueryRow(ctx, pgTailQuery))
		if err != nil {
			return err
		}
		e = link(tail)

		_, err = tx.Exec(ctx, `
			INSERT INTO dispute_audit_log (`+entryColumns+`)
			VALUES (@sequence, @id, @attempt_id, @run_id, @record_key, @from_state, @to_state, @outcome, @detail, @occurred_at, @prev_hash, @hash)`,
			pgx.NamedArgs{
				"sequence":    e.Sequence,
				"id":          e.ID,
				"attempt_id":  e.AttemptID,
				"run_id":      e.RunID,
				"record_key":  e.RecordKey,
				"from_state":  string(e.FromState),
				"to_state":    string(e.ToState),
				"outcome":     string(e.Outcome),
				"detail":      e.Detail,
				"occurred_at": e.OccurredAt,
				"prev_hash":   e.PrevHash,
				"hash":        e.Hash,
			},
		)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *PostgresStore) Last(ctx context.Context) (*Entry, error) {
	return pgTail(s.pool.QueryRow(ctx, pgTailQuery))
}

func pgTail(row pgx.Row) (*Entry, error) {
	e, err := scanPgEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) List(ctx context.Context, after int64, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM dispute_audit_log WHERE sequence > $1 ORDER BY sequence ASC LIMIT $2`,
		after, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectPgEntries(rows)
}

func (s *PostgresStore) Dangling(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
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
	return collectPgEntries(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgEntry(row pgx.Row) (Entry, error) {
	var (
		e                 Entry
		from, to, outcome string
	)
	if err := row.Scan(&e.Sequence, &e.ID, &e.AttemptID, &e.RunID, &e.RecordKey, &from, &to, &outcome, &e.Detail, &e.OccurredAt, &e.PrevHash, &e.Hash); err != nil {
		return Entry{}, err
	}
	e.FromState = domain.State(from)
	e.ToState = domain.State(to)
	e.Outcome = Outcome(outcome)
	e.OccurredAt = e.OccurredAt.UTC()
	return e, nil
}

func collectPgEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanPgEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
