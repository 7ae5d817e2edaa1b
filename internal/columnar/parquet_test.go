package columnar

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"disneyetl/pkg/records"
)

func characterTable() records.Table {
	created := time.Date(2021, 4, 12, 1, 31, 30, 547000000, time.UTC)
	return records.Table{
		Columns: []string{"id", "films", "name", "created_at", "url", "version", "score", "active"},
		Rows: []records.Record{
			{"id": int64(112), "films": "Hercules", "name": "abc", "created_at": created, "url": nil, "version": int64(0), "score": 1.5, "active": true},
			{"id": int64(112), "films": "Mulan", "name": "abc", "created_at": created, "url": nil, "version": int64(0), "score": int64(2), "active": false},
		},
	}
}

func TestSchema_InfersTypes(t *testing.T) {
	t.Parallel()

	s := Schema(characterTable())
	want := map[string]arrow.Type{
		"id":         arrow.INT64,
		"films":      arrow.STRING,
		"name":       arrow.STRING,
		"created_at": arrow.TIMESTAMP,
		"url":        arrow.STRING,
		"version":    arrow.INT64,
		"score":      arrow.FLOAT64,
		"active":     arrow.BOOL,
	}
	if s.NumFields() != len(want) {
		t.Fatalf("fields = %d; want %d", s.NumFields(), len(want))
	}
	for i, f := range s.Fields() {
		if f.Name != characterTable().Columns[i] {
			t.Fatalf("field %d = %s; want column order kept", i, f.Name)
		}
		if f.Type.ID() != want[f.Name] {
			t.Fatalf("field %s type = %s; want %s", f.Name, f.Type, want[f.Name])
		}
	}
}

func TestInferType_MixedFallsBackToString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		col  []any
		want arrow.Type
	}{
		{"all_null", []any{nil, nil}, arrow.STRING},
		{"int_and_string", []any{int64(1), "x"}, arrow.STRING},
		{"int32_only", []any{int32(1), nil}, arrow.INT32},
		{"int32_and_int64", []any{int32(1), int64(2)}, arrow.INT64},
		{"nested", []any{[]any{"a"}}, arrow.STRING},
		{"json_number", []any{json.Number("1")}, arrow.STRING},
	}
	for _, tc := range tests {
		if got := inferType(tc.col).ID(); got != tc.want {
			t.Fatalf("%s: inferType = %s; want %s", tc.name, got, tc.want)
		}
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, characterTable()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PAR1")) {
		t.Fatalf("output does not start with parquet magic")
	}

	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("ReadTable error: %v", err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 2 || tbl.NumCols() != 8 {
		t.Fatalf("table = %d rows x %d cols; want 2 x 8", tbl.NumRows(), tbl.NumCols())
	}

	films := tbl.Column(1).Data().Chunk(0).(*array.String)
	if films.Value(0) != "Hercules" || films.Value(1) != "Mulan" {
		t.Fatalf("films = %q, %q", films.Value(0), films.Value(1))
	}
	ids := tbl.Column(0).Data().Chunk(0).(*array.Int64)
	if ids.Value(0) != 112 {
		t.Fatalf("id = %d; want 112", ids.Value(0))
	}
	if urls := tbl.Column(4).Data().Chunk(0); urls.NullN() != 2 {
		t.Fatalf("url nulls = %d; want 2", urls.NullN())
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "disney_api_curated_dag", "112.parquet")
	if err := WriteFile(p, characterTable()); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	fi, err := os.Stat(p)
	if err != nil || fi.Size() == 0 {
		t.Fatalf("stat %s = %v, %v", p, fi, err)
	}
}

func TestWrite_EmptyTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, records.Table{Columns: []string{"id", "name"}}); err != nil {
		t.Fatalf("Write(empty) error: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a parquet footer for an empty table")
	}
}
