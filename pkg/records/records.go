// Package records defines the row and table shapes that flow between the
// parser, normalizer, transformation engine and column writers.
//
// A Record is a single row keyed by column name. A nil value (or a missing
// key) is a null. A Table pairs an ordered column list with its rows so that
// column order survives the trip through map-based rows.
//
// Ordered is the pre-normalization shape: one decoded JSON object whose key
// order is preserved, because explosion order follows key order.
package records

import "slices"

// Record is one row: column name -> scalar value (nil means null).
type Record map[string]any

// Clone returns a shallow copy of r. Values are shared, the map is not.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Ordered is a decoded object with its keys in source order.
type Ordered struct {
	Keys   []string
	Values map[string]any
}

// NewOrdered returns an empty Ordered ready for Set.
func NewOrdered() *Ordered {
	return &Ordered{Values: map[string]any{}}
}

// Set assigns key. New keys are appended; existing keys keep their position.
func (o *Ordered) Set(key string, v any) {
	if o.Values == nil {
		o.Values = map[string]any{}
	}
	if _, ok := o.Values[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Values[key] = v
}

// Get returns the value for key and whether it was present.
func (o *Ordered) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.Values[key]
	return v, ok
}

// Record flattens o into a plain Record (order is dropped).
func (o *Ordered) Record() Record {
	out := make(Record, len(o.Keys))
	for _, k := range o.Keys {
		out[k] = o.Values[k]
	}
	return out
}

// Table is an ordered column set plus rows. Rows may omit columns; an
// omitted column reads as null.
type Table struct {
	Columns []string
	Rows    []Record
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// HasColumn reports whether name is one of t's columns.
func (t Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// Column returns the values of name in row order.
func (t Table) Column(name string) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// Clone returns a copy of t whose column slice and row maps are new. Cell
// values are shared.
func (t Table) Clone() Table {
	out := Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([]Record, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Select returns a table holding exactly cols, in that order. Columns not
// present in t are materialized as null.
func (t Table) Select(cols []string) Table {
	out := Table{
		Columns: slices.Clone(cols),
		Rows:    make([]Record, len(t.Rows)),
	}
	for i, r := range t.Rows {
		row := make(Record, len(cols))
		for _, c := range cols {
			row[c] = r[c]
		}
		out.Rows[i] = row
	}
	return out
}
