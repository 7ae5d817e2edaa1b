// Package mysql implements the load ledger on MySQL using database/sql and
// go-sql-driver/mysql. A batch is written with one multi-row
// INSERT ... ON DUPLICATE KEY UPDATE statement.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"disneyetl/internal/storage"

	"github.com/go-sql-driver/mysql"
)

// Repository is a MySQL-backed storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN, cfg.Table)
	})
}

// NormalizeDSN parses dsn and forces the settings the ledger relies on:
// DATETIME columns scan into time.Time in UTC.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Open normalizes dsn, connects and pings.
func Open(ctx context.Context, dsn, table string) (*Repository, error) {
	norm, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", norm)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Repository{db: db, table: table}, nil
}

// Close releases the database handle.
func (r *Repository) Close() { _ = r.db.Close() }

// CreateTableSQL returns the ledger DDL for table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n"+
		"  `dag` VARCHAR(128) NOT NULL,\n"+
		"  `object_key` VARCHAR(512) NOT NULL,\n"+
		"  `record_id` VARCHAR(128) NOT NULL,\n"+
		"  `row_count` BIGINT NOT NULL,\n"+
		"  `loaded_at` DATETIME(6) NOT NULL,\n"+
		"  PRIMARY KEY (`dag`, `object_key`)\n"+
		")", myFQN(table))
}

// UpsertSQL returns a multi-row upsert for n entries.
func UpsertSQL(table string, n int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(storage.Columns)), ", ") + ")"
	rows := make([]string, n)
	for i := range rows {
		rows[i] = row
	}
	var sets []string
	for _, c := range storage.Columns {
		if c == "dag" || c == "object_key" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", myIdent(c), myIdent(c)))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON DUPLICATE KEY UPDATE %s",
		myFQN(table), strings.Join(mapIdent(storage.Columns), ", "),
		strings.Join(rows, ", "), strings.Join(sets, ", "))
}

// EnsureTable implements storage.Repository.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, CreateTableSQL(r.table)); err != nil {
		return fmt.Errorf("mysql: create table: %w", err)
	}
	return nil
}

// Record implements storage.Repository.
func (r *Repository) Record(ctx context.Context, entries []storage.Entry) (int64, error) {
	entries = storage.Dedup(entries)
	if len(entries) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(entries)*len(storage.Columns))
	for _, e := range entries {
		args = append(args, e.Values()...)
	}
	if _, err := r.db.ExecContext(ctx, UpsertSQL(r.table, len(entries)), args...); err != nil {
		return 0, fmt.Errorf("mysql: upsert: %w", err)
	}
	// RowsAffected counts updates twice under ON DUPLICATE KEY UPDATE.
	return int64(len(entries)), nil
}

// Loaded implements storage.Repository.
func (r *Repository) Loaded(ctx context.Context, dag string) ([]storage.Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE `dag` = ? ORDER BY `object_key`",
		strings.Join(mapIdent(storage.Columns), ", "), myFQN(r.table))
	rows, err := r.db.QueryContext(ctx, q, dag)
	if err != nil {
		return nil, fmt.Errorf("mysql: query: %w", err)
	}
	defer rows.Close()

	var out []storage.Entry
	for rows.Next() {
		var e storage.Entry
		if err := rows.Scan(&e.DAG, &e.ObjectKey, &e.RecordID, &e.Rows, &e.LoadedAt); err != nil {
			return nil, fmt.Errorf("mysql: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func myFQN(name string) string {
	return strings.Join(mapIdent(storage.SplitFQN(name)), ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = myIdent(c)
	}
	return out
}
