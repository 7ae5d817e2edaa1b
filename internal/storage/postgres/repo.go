// Package postgres implements the load ledger on Postgres using pgx v5. A
// batch is COPYed into a transaction-scoped temporary table and then merged
// into the ledger with INSERT ... ON CONFLICT.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"disneyetl/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool  *pgxpool.Pool
	table string
}

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN, cfg.Table)
	})
}

// Open creates a pool for dsn and pings it.
func Open(ctx context.Context, dsn, table string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool, table: table}, nil
}

// Close releases the pool.
func (r *Repository) Close() { r.pool.Close() }

// CreateTableSQL returns the ledger DDL for table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  dag TEXT NOT NULL,
  object_key TEXT NOT NULL,
  record_id TEXT NOT NULL,
  row_count BIGINT NOT NULL,
  loaded_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (dag, object_key)
)`, pgFQN(table))
}

// MergeSQL returns the statement moving rows from tmp into table.
func MergeSQL(table, tmp string) string {
	cols := strings.Join(mapIdent(storage.Columns), ", ")
	return fmt.Sprintf(
		`INSERT INTO %s (%s)
SELECT %s FROM %s
ON CONFLICT (%s) DO UPDATE SET %s`,
		pgFQN(table), cols, cols, pgIdent(tmp),
		strings.Join(mapIdent(storage.KeyColumns), ", "),
		strings.Join(updateColumns(nonKeyColumns()), ", "),
	)
}

// tempName derives the staging table name from the ledger name.
func tempName(table string) string {
	return "tmp_" + strings.ReplaceAll(table, ".", "_")
}

// EnsureTable implements storage.Repository.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, CreateTableSQL(r.table)); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// Record implements storage.Repository.
func (r *Repository) Record(ctx context.Context, entries []storage.Entry) (int64, error) {
	entries = storage.Dedup(entries)
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tmp := tempName(r.table)
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", pgIdent(tmp), pgFQN(r.table))
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("postgres: create temp: %w", err)
	}

	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = e.Values()
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{tmp}, storage.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("postgres: copy into temp: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return 0, fmt.Errorf("postgres: copy into temp: %w", err)
	}
	if _, err := tx.Exec(ctx, MergeSQL(r.table, tmp)); err != nil {
		return 0, fmt.Errorf("postgres: merge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

// Loaded implements storage.Repository.
func (r *Repository) Loaded(ctx context.Context, dag string) ([]storage.Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE dag = $1 ORDER BY object_key",
		strings.Join(mapIdent(storage.Columns), ", "), pgFQN(r.table))
	rows, err := r.pool.Query(ctx, q, dag)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Entry, error) {
		var e storage.Entry
		err := row.Scan(&e.DAG, &e.ObjectKey, &e.RecordID, &e.Rows, &e.LoadedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan: %w", err)
	}
	return out, nil
}

func nonKeyColumns() []string {
	var out []string
	for _, c := range storage.Columns {
		isKey := false
		for _, k := range storage.KeyColumns {
			if c == k {
				isKey = true
				break
			}
		}
		if !isKey {
			out = append(out, c)
		}
	}
	return out
}

// updateColumns generates "col = EXCLUDED.col" assignments.
func updateColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		out = append(out, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(col), pgIdent(col)))
	}
	return out
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.load_ledger" to
// "public"."load_ledger".
func pgFQN(name string) string {
	return strings.Join(mapIdent(storage.SplitFQN(name)), ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
