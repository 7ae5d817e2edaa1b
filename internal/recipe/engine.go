package recipe

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"disneyetl/pkg/records"
)

// Engine applies recipes to tables. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	// Logger receives the missing-column warnings and progress events.
	Logger zerolog.Logger
	// Funcs resolves Structured.FnName. Nil means DefaultFuncs().
	Funcs Funcs
	// SkipNullFn leaves nulls untouched in the fn step. By default fn sees
	// every value, null included.
	SkipNullFn bool
}

// NewEngine returns an Engine with the default function registry.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{Logger: logger, Funcs: DefaultFuncs()}
}

// step is one compiled recipe column.
type step struct {
	source  string
	target  string
	replace map[any]any
	fn      Func
	fnName  string
	typ     string
	cast    caster
	dateFmt string
	date    *dateParser
	fillna  any
}

// compile validates every column up front so a bad recipe never produces
// output.
func compile(r Recipe, funcs Funcs) ([]step, error) {
	if funcs == nil {
		funcs = DefaultFuncs()
	}
	steps := make([]step, 0, len(r))
	seen := make(map[string]bool, len(r))
	for _, c := range r {
		if c.Source == "" {
			return nil, &ConfigError{Reason: "empty source column name"}
		}
		if seen[c.Source] {
			return nil, &ConfigError{Column: c.Source, Reason: "duplicate source column"}
		}
		seen[c.Source] = true
		st := step{source: c.Source}

		switch spec := c.Spec.(type) {
		case Rename:
			if spec == "" {
				return nil, &ConfigError{Column: c.Source, Reason: "empty rename target"}
			}
			st.target = string(spec)
		case *Structured:
			if spec == nil {
				return nil, &ConfigError{Column: c.Source, Reason: "nil structured spec"}
			}
			st.target = spec.Target(c.Source)
			st.replace = spec.Replace
			switch {
			case spec.Fn != nil:
				st.fn, st.fnName = spec.Fn, "fn"
			case spec.FnName != "":
				f, ok := funcs[spec.FnName]
				if !ok {
					return nil, &ConfigError{Column: c.Source, Reason: fmt.Sprintf("unknown fn %q", spec.FnName)}
				}
				st.fn, st.fnName = f, spec.FnName
			}
			if spec.Type != "" {
				ct, ok := casterFor(spec.Type)
				if !ok {
					return nil, &ConfigError{Column: c.Source, Reason: fmt.Sprintf("unsupported type %q", spec.Type)}
				}
				st.typ, st.cast = spec.Type, ct
			}
			if spec.DateFormat != "" {
				p, err := newDateParser(spec.DateFormat)
				if err != nil {
					return nil, &ConfigError{Column: c.Source, Reason: fmt.Sprintf("date_format %q: %v", spec.DateFormat, err)}
				}
				st.dateFmt, st.date = spec.DateFormat, &p
			}
			st.fillna = spec.FillNA
			if st.fillna != nil && st.date != nil {
				// Date columns hold time.Time; parse the fill with the same format.
				fv, err := st.date.parse(st.fillna)
				if err != nil {
					return nil, &ConfigError{Column: c.Source, Reason: fmt.Sprintf("fillna %v does not match date_format %q: %v", st.fillna, st.dateFmt, err)}
				}
				st.fillna = fv
			}
			if st.fillna != nil && st.cast != nil && st.date == nil {
				// Keep the fill value the same type as the cast column.
				fv, err := st.cast(st.fillna)
				if err != nil {
					return nil, &ConfigError{Column: c.Source, Reason: fmt.Sprintf("fillna %v is not a %s: %v", st.fillna, st.typ, err)}
				}
				st.fillna = fv
			}
			if n, ok := st.fillna.(json.Number); ok && st.cast == nil {
				st.fillna = numberValue(n)
			}
		default:
			return nil, &ConfigError{Column: c.Source, Reason: fmt.Sprintf("unrecognized column spec %T", c.Spec)}
		}
		steps = append(steps, st)
	}
	return steps, nil
}

// Transform applies r to t and returns a new table holding exactly the
// canonical columns in canonical order. t is not modified.
//
// Per recipe column, in order: a source column missing from t becomes an
// all-null target column (logged at warn); otherwise replace, fn, type,
// date_format and fillna run in that order and the column is renamed last.
// Canonical columns still absent afterwards are added as all-null columns.
//
// A *ConfigError is returned before any row is processed; a *CastError
// aborts the transform. Either way no table is returned.
func (e *Engine) Transform(t records.Table, r Recipe, canonical []string) (records.Table, error) {
	steps, err := compile(r, e.Funcs)
	if err != nil {
		return records.Table{}, err
	}
	if t.Len() == 0 {
		e.Logger.Info().Msg("table is empty, nothing to transform")
		return records.Table{Columns: slices.Clone(canonical), Rows: []records.Record{}}, nil
	}

	out := t.Clone()
	for _, st := range steps {
		e.Logger.Debug().Str("column", st.source).Str("target", st.target).Msg("transforming field")

		if !out.HasColumn(st.source) {
			e.Logger.Warn().
				Str("column", st.source).
				Str("target", st.target).
				Msg("source column not available, creating null column")
			setColumn(&out, st.target, nil)
			continue
		}

		col := out.Column(st.source)
		if err := e.apply(st, col); err != nil {
			return records.Table{}, err
		}
		renameColumn(&out, st.source, st.target, col)
	}

	var missing []string
	for _, c := range canonical {
		if !out.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		e.Logger.Info().Strs("columns", missing).Msg("columns not available, filling with null")
	}
	return out.Select(canonical), nil
}

// apply runs steps 2-6 over one column in place.
func (e *Engine) apply(st step, col []any) error {
	if len(st.replace) > 0 {
		for i, v := range col {
			if nv, ok := lookupReplace(st.replace, v); ok {
				col[i] = nv
			}
		}
	}

	if st.fn != nil {
		for i, v := range col {
			if v == nil && e.SkipNullFn {
				continue
			}
			nv, err := st.fn(v)
			if err != nil {
				return &CastError{Column: st.source, Row: i, Step: "fn", Target: st.fnName, Value: v, Err: err}
			}
			col[i] = nv
		}
	}

	if st.cast != nil {
		for i, v := range col {
			if v == nil {
				continue
			}
			nv, err := st.cast(v)
			if err != nil {
				return &CastError{Column: st.source, Row: i, Step: "type", Target: st.typ, Value: v, Err: err}
			}
			col[i] = nv
		}
	}

	if st.date != nil {
		for i, v := range col {
			nv, err := st.date.parse(v)
			if err != nil {
				return &CastError{Column: st.source, Row: i, Step: "date_format", Target: st.dateFmt, Value: v, Err: err}
			}
			col[i] = nv
		}
	}

	if st.fillna != nil {
		for i, v := range col {
			if v == nil {
				col[i] = st.fillna
			}
		}
	}
	return nil
}

// lookupReplace finds v among the replace keys. Only scalar values are
// looked up; a json.Number also matches its string form.
func lookupReplace(m map[any]any, v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		nv, ok := m[nil]
		return nv, ok
	case string, bool, int, int32, int64, float32, float64, time.Time:
		nv, ok := m[x]
		return nv, ok
	case json.Number:
		if nv, ok := m[x]; ok {
			return nv, true
		}
		nv, ok := m[x.String()]
		return nv, ok
	default:
		return nil, false
	}
}

// numberValue turns a JSON literal into int64 when integral, else float64.
func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// setColumn writes v into every row under name and registers the column.
func setColumn(t *records.Table, name string, v any) {
	for _, row := range t.Rows {
		row[name] = v
	}
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// renameColumn stores vals under target and drops source. The target takes
// the source's position; an existing target column is replaced.
func renameColumn(t *records.Table, source, target string, vals []any) {
	for i, row := range t.Rows {
		if source != target {
			delete(row, source)
		}
		row[target] = vals[i]
	}
	if source == target {
		return
	}
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		switch c {
		case target:
			continue
		case source:
			cols = append(cols, target)
		default:
			cols = append(cols, c)
		}
	}
	t.Columns = cols
}
