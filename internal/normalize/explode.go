// Package normalize flattens one semi-structured record into flat rows.
//
// Every list-valued field is exploded: each existing row is replicated once
// per list element, with the field set to that element. Exploding several
// fields multiplies rows (cartesian product), in record key order.
//
// An empty list explodes to zero rows, which drops the record entirely.
// Callers that need to keep such records must substitute a one-element list
// before calling Explode.
package normalize

import (
	"slices"

	"disneyetl/pkg/records"
)

// Explode flattens rec into a table whose columns are rec's keys in order.
// A record without list-valued fields yields exactly one row.
func Explode(rec *records.Ordered) records.Table {
	if rec == nil {
		return records.Table{}
	}

	rows := []records.Record{rec.Record()}
	for _, key := range rec.Keys {
		list, ok := rec.Values[key].([]any)
		if !ok {
			continue
		}
		rows = explodeKey(rows, key, list)
	}

	return records.Table{
		Columns: slices.Clone(rec.Keys),
		Rows:    rows,
	}
}

// explodeKey replicates each row once per element of list.
func explodeKey(rows []records.Record, key string, list []any) []records.Record {
	out := make([]records.Record, 0, len(rows)*len(list))
	for _, r := range rows {
		for _, elem := range list {
			row := r.Clone()
			row[key] = elem
			out = append(out, row)
		}
	}
	return out
}

// ExplodeAll explodes every record and returns one table per record, in
// input order.
func ExplodeAll(recs []*records.Ordered) []records.Table {
	out := make([]records.Table, len(recs))
	for i, r := range recs {
		out[i] = Explode(r)
	}
	return out
}
