// Package columnar writes records.Table values as Parquet files through
// Apache Arrow.
//
// Column types are inferred from the values:
//
//	int, int64          -> int64
//	int32               -> int32
//	float32, float64    -> float64 (int mixed with float also widens here)
//	bool                -> boolean
//	time.Time           -> timestamp[us, UTC]
//	string, json.Number -> utf8
//	lists, sub-records  -> utf8 holding JSON
//
// A column with no non-null value is written as nullable utf8. Columns
// whose non-null values disagree on a type fall back to utf8.
package columnar

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"disneyetl/pkg/records"
)

var timestampUTC = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// Schema infers the Arrow schema for t in column order.
func Schema(t records.Table) *arrow.Schema {
	fields := make([]arrow.Field, len(t.Columns))
	for i, c := range t.Columns {
		fields[i] = arrow.Field{Name: c, Type: inferType(t.Column(c)), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func typeOf(v any) arrow.DataType {
	switch v.(type) {
	case int, int64:
		return arrow.PrimitiveTypes.Int64
	case int32:
		return arrow.PrimitiveTypes.Int32
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case time.Time:
		return timestampUTC
	default:
		return arrow.BinaryTypes.String
	}
}

func inferType(col []any) arrow.DataType {
	var dt arrow.DataType
	for _, v := range col {
		if v == nil {
			continue
		}
		vt := typeOf(v)
		switch {
		case dt == nil:
			dt = vt
		case arrow.TypeEqual(dt, vt):
		case isNumeric(dt) && isNumeric(vt):
			dt = widen(dt, vt)
		default:
			return arrow.BinaryTypes.String
		}
	}
	if dt == nil {
		return arrow.BinaryTypes.String
	}
	return dt
}

func isNumeric(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT32, arrow.INT64, arrow.FLOAT64:
		return true
	}
	return false
}

func widen(a, b arrow.DataType) arrow.DataType {
	if a.ID() == arrow.FLOAT64 || b.ID() == arrow.FLOAT64 {
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.PrimitiveTypes.Int64
}

// Record builds an Arrow record for t. The caller must Release it.
func Record(pool memory.Allocator, t records.Table) (arrow.Record, error) {
	schema := Schema(t)
	cols := make([]arrow.Array, len(t.Columns))
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i, f := range schema.Fields() {
		arr, err := buildColumn(pool, f.Type, t.Column(f.Name))
		if err != nil {
			return nil, fmt.Errorf("columnar: column %q: %w", f.Name, err)
		}
		cols[i] = arr
	}
	// NewRecord retains the arrays; the deferred Release drops our refs.
	return array.NewRecord(schema, cols, int64(t.Len())), nil
}

func buildColumn(pool memory.Allocator, dt arrow.DataType, vals []any) (arrow.Array, error) {
	b := array.NewBuilder(pool, dt)
	defer b.Release()
	b.Reserve(len(vals))

	for _, v := range vals {
		if v == nil {
			b.AppendNull()
			continue
		}
		switch bb := b.(type) {
		case *array.Int64Builder:
			bb.Append(asInt64(v))
		case *array.Int32Builder:
			bb.Append(v.(int32))
		case *array.Float64Builder:
			bb.Append(asFloat64(v))
		case *array.BooleanBuilder:
			bb.Append(v.(bool))
		case *array.TimestampBuilder:
			bb.Append(arrow.Timestamp(v.(time.Time).UTC().UnixMicro()))
		case *array.StringBuilder:
			s, err := asString(v)
			if err != nil {
				return nil, err
			}
			bb.Append(s)
		default:
			return nil, fmt.Errorf("unsupported arrow type %s", dt)
		}
	}
	return b.NewArray(), nil
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	default:
		return x.(int64)
	}
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case int32:
		return float64(x)
	case int:
		return float64(x)
	default:
		return float64(x.(int64))
	}
}

func asString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return x.String(), nil
	case []any, map[string]any, records.Record:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(x), nil
	}
}

// Write encodes t as one Parquet file (snappy compressed) to w.
func Write(w io.Writer, t records.Table) error {
	pool := memory.NewGoAllocator()

	rec, err := Record(pool, t)
	if err != nil {
		return err
	}
	defer rec.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithAllocator(pool),
	)
	fw, err := pqarrow.NewFileWriter(rec.Schema(), w, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return fmt.Errorf("columnar: create parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("columnar: write parquet record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("columnar: close parquet writer: %w", err)
	}
	return nil
}

// WriteFile writes t to path, creating parent directories. A failed write
// leaves no file behind.
func WriteFile(path string, t records.Table) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("columnar: mkdir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("columnar: create %s: %w", path, err)
	}
	defer func() {
		// The parquet writer may already have closed f.
		if cerr := f.Close(); err == nil && cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = fmt.Errorf("columnar: close %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return Write(f, t)
}
