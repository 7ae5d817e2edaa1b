package mysql

import (
	"strings"
	"testing"
)

func TestNormalizeDSN(t *testing.T) {
	t.Parallel()

	got, err := NormalizeDSN("etl:secret@tcp(db:3306)/ledger")
	if err != nil {
		t.Fatalf("NormalizeDSN: %v", err)
	}
	if !strings.Contains(got, "parseTime=true") {
		t.Fatalf("NormalizeDSN = %q; want parseTime=true", got)
	}
	if _, err := NormalizeDSN("not a dsn"); err == nil {
		t.Fatalf("NormalizeDSN(invalid) = nil error")
	}
}

/*
TestUpsertSQL checks placeholder count and that key columns are never part
of the update list.
*/
func TestUpsertSQL(t *testing.T) {
	t.Parallel()

	got := UpsertSQL("etl.load_ledger", 2)
	if n := strings.Count(got, "?"); n != 10 {
		t.Fatalf("placeholders = %d; want 10\n%s", n, got)
	}
	if !strings.HasPrefix(got, "INSERT INTO `etl`.`load_ledger` (`dag`, `object_key`, `record_id`, `row_count`, `loaded_at`)") {
		t.Fatalf("UpsertSQL prefix mismatch:\n%s", got)
	}
	if !strings.Contains(got, "`row_count` = VALUES(`row_count`)") {
		t.Fatalf("UpsertSQL update list mismatch:\n%s", got)
	}
	if strings.Contains(got, "`dag` = VALUES") {
		t.Fatalf("UpsertSQL updates a key column:\n%s", got)
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got := CreateTableSQL("load_ledger")
	if !strings.Contains(got, "CREATE TABLE IF NOT EXISTS `load_ledger`") || !strings.Contains(got, "DATETIME(6)") {
		t.Fatalf("CreateTableSQL:\n%s", got)
	}
}
