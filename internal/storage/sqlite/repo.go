// Package sqlite implements the load ledger on SQLite using database/sql and
// the pure-Go modernc.org/sqlite driver. Entries are upserted inside one
// transaction with a prepared statement; SQLite has no bulk-load API, but a
// single transaction keeps moderate volumes fast.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"disneyetl/internal/storage"

	_ "modernc.org/sqlite"
)

// Repository is a SQLite-backed storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN, cfg.Table)
	})
}

// Open opens dsn and pings it. DSN is passed directly to database/sql, e.g.
// "file:ledger.db?_pragma=busy_timeout(5000)" or "ledger.db".
func Open(ctx context.Context, dsn, table string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY from the pool.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db, table: table}, nil
}

// Close releases the database handle.
func (r *Repository) Close() { _ = r.db.Close() }

// CreateTableSQL returns the ledger DDL for table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  dag TEXT NOT NULL,
  object_key TEXT NOT NULL,
  record_id TEXT NOT NULL,
  row_count INTEGER NOT NULL,
  loaded_at TEXT NOT NULL,
  PRIMARY KEY (dag, object_key)
)`, quoteFQN(table))
}

// UpsertSQL returns the single-row upsert for table.
func UpsertSQL(table string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?) "+
			"ON CONFLICT (dag, object_key) DO UPDATE SET "+
			"record_id = excluded.record_id, row_count = excluded.row_count, loaded_at = excluded.loaded_at",
		quoteFQN(table), strings.Join(storage.Columns, ", "),
	)
}

// EnsureTable implements storage.Repository.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, CreateTableSQL(r.table)); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

// Record implements storage.Repository.
func (r *Repository) Record(ctx context.Context, entries []storage.Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, UpsertSQL(r.table))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare upsert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.DAG, e.ObjectKey, e.RecordID, e.Rows, e.LoadedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: upsert %s: %w", e.ObjectKey, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// Loaded implements storage.Repository.
func (r *Repository) Loaded(ctx context.Context, dag string) ([]storage.Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE dag = ? ORDER BY object_key",
		strings.Join(storage.Columns, ", "), quoteFQN(r.table))
	rows, err := r.db.QueryContext(ctx, q, dag)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var out []storage.Entry
	for rows.Next() {
		var (
			e  storage.Entry
			ts string
		)
		if err := rows.Scan(&e.DAG, &e.ObjectKey, &e.RecordID, &e.Rows, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		if e.LoadedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("sqlite: loaded_at %q: %w", ts, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func quoteFQN(name string) string {
	parts := storage.SplitFQN(name)
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}
