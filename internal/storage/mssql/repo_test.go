package mssql

import (
	"context"
	"strings"
	"testing"
)

func TestIdentHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"load_ledger", "[load_ledger]"},
		{"dbo.load_ledger", "[dbo].[load_ledger]"},
		{"we]ird", "[we]]ird]"},
	}
	for _, tc := range tests {
		if got := msFQN(tc.in); got != tc.want {
			t.Fatalf("msFQN(%q) = %s; want %s", tc.in, got, tc.want)
		}
	}
	if got := tempName("dbo.load_ledger"); got != "#tmp_dbo_load_ledger" {
		t.Fatalf("tempName = %s", got)
	}
}

/*
TestMergeSQL checks the MERGE statement: join on the key, update only
non-key columns, insert every column.
*/
func TestMergeSQL(t *testing.T) {
	t.Parallel()

	got := MergeSQL("dbo.load_ledger", "#tmp_dbo_load_ledger")
	for _, want := range []string{
		"MERGE INTO [dbo].[load_ledger] AS T",
		"USING [#tmp_dbo_load_ledger] AS S",
		"ON T.[dag] = S.[dag] AND T.[object_key] = S.[object_key]",
		"UPDATE SET T.[record_id] = S.[record_id], T.[row_count] = S.[row_count], T.[loaded_at] = S.[loaded_at]",
		"INSERT ([dag], [object_key], [record_id], [row_count], [loaded_at])",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("MergeSQL missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, ";") {
		t.Fatalf("MERGE must be terminated by a semicolon:\n%s", got)
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got := CreateTableSQL("dbo.load_ledger")
	for _, want := range []string{"IF OBJECT_ID(N'dbo.load_ledger', N'U') IS NULL", "CREATE TABLE [dbo].[load_ledger]", "[pk_dbo_load_ledger]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("CreateTableSQL missing %q:\n%s", want, got)
		}
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "sqlserver://%zz", "t"); err == nil {
		t.Fatalf("Open(invalid dsn) = nil error")
	}
}
