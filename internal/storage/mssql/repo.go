// Package mssql implements the load ledger on Microsoft SQL Server using the
// go-mssqldb bulk copy API. A batch is bulk-inserted into a session temporary
// table (#temp) and then MERGEd into the ledger.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"disneyetl/internal/storage"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// Repository is an MSSQL-backed storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN, cfg.Table)
	})
}

// Open validates dsn, connects and pings.
func Open(ctx context.Context, dsn, table string) (*Repository, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql: dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repository{db: db, table: table}, nil
}

// Close releases the database handle.
func (r *Repository) Close() { _ = r.db.Close() }

// CreateTableSQL returns the ledger DDL for table, guarded by OBJECT_ID.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
  [dag] NVARCHAR(128) NOT NULL,
  [object_key] NVARCHAR(400) NOT NULL,
  [record_id] NVARCHAR(128) NOT NULL,
  [row_count] BIGINT NOT NULL,
  [loaded_at] DATETIME2 NOT NULL,
  CONSTRAINT %s PRIMARY KEY ([dag], [object_key])
)`, strings.ReplaceAll(table, "'", "''"), msFQN(table), msIdent("pk_"+strings.ReplaceAll(table, ".", "_")))
}

// MergeSQL returns the MERGE moving rows from tmp into table.
func MergeSQL(table, tmp string) string {
	var sets []string
	for _, c := range storage.Columns {
		if !isKey(c) {
			sets = append(sets, fmt.Sprintf("T.%s = S.%s", msIdent(c), msIdent(c)))
		}
	}
	src := make([]string, len(storage.Columns))
	for i, c := range storage.Columns {
		src[i] = "S." + msIdent(c)
	}
	return fmt.Sprintf(`MERGE INTO %s AS T
USING %s AS S
  ON %s
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);`,
		msFQN(table), msIdent(tmp),
		buildJoinCondition(storage.KeyColumns),
		strings.Join(sets, ", "),
		strings.Join(mapIdent(storage.Columns), ", "),
		strings.Join(src, ", "),
	)
}

func tempName(table string) string {
	return "#tmp_" + strings.ReplaceAll(table, ".", "_")
}

// EnsureTable implements storage.Repository.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, CreateTableSQL(r.table)); err != nil {
		return fmt.Errorf("mssql: create table: %w", err)
	}
	return nil
}

// Record implements storage.Repository.
func (r *Repository) Record(ctx context.Context, entries []storage.Entry) (int64, error) {
	entries = storage.Dedup(entries)
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	tmp := tempName(r.table)
	create := fmt.Sprintf("SELECT TOP 0 %s INTO %s FROM %s",
		strings.Join(mapIdent(storage.Columns), ","), msIdent(tmp), msFQN(r.table))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: create temp: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(tmp, mssql.BulkOptions{}, storage.Columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: prepare bulk: %w", err)
	}
	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Values()...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("mssql: bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, MergeSQL(r.table, tmp)); err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: merge: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+msIdent(tmp)); err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: drop temp: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

// Loaded implements storage.Repository.
func (r *Repository) Loaded(ctx context.Context, dag string) ([]storage.Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE [dag] = @p1 ORDER BY [object_key]",
		strings.Join(mapIdent(storage.Columns), ", "), msFQN(r.table))
	rows, err := r.db.QueryContext(ctx, q, dag)
	if err != nil {
		return nil, fmt.Errorf("mssql: query: %w", err)
	}
	defer rows.Close()

	var out []storage.Entry
	for rows.Next() {
		var e storage.Entry
		if err := rows.Scan(&e.DAG, &e.ObjectKey, &e.RecordID, &e.Rows, &e.LoadedAt); err != nil {
			return nil, fmt.Errorf("mssql: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func isKey(col string) bool {
	for _, k := range storage.KeyColumns {
		if k == col {
			return true
		}
	}
	return false
}

// buildJoinCondition builds the T=S equality join for the key columns.
func buildJoinCondition(keyColumns []string) string {
	conds := make([]string, 0, len(keyColumns))
	for _, col := range keyColumns {
		conds = append(conds, fmt.Sprintf("T.%s = S.%s", msIdent(col), msIdent(col)))
	}
	return strings.Join(conds, " AND ")
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.load_ledger" to
// "[dbo].[load_ledger]".
func msFQN(name string) string {
	return strings.Join(mapIdent(storage.SplitFQN(name)), ".")
}

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}
