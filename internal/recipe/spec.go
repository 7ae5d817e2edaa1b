// Package recipe implements the declarative field-transformation engine.
//
// A Recipe is an ordered list of source columns, each paired with a
// ColumnSpec. A ColumnSpec is one of two shapes:
//
//   - Rename: a bare target name, meaning "rename only".
//   - Structured: optional rename, fn, type, replace, date_format and fillna.
//
// In JSON a recipe is an object whose member order is the recipe order:
//
//	{
//	  "_id":  {"rename": "id", "type": "int64"},
//	  "name": {"fn": "sha256"},
//	  "imageUrl": "image_url"
//	}
//
// A member that is neither a string nor an object is a *ConfigError.
//
// Engine.Transform applies each column's steps in a fixed order
// (missing-column guard, replace, fn, type, date_format, fillna, rename) and
// then projects the result onto the canonical column set.
package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// ColumnSpec is the per-column rule. The concrete types are Rename and
// *Structured.
type ColumnSpec interface {
	// Target returns the output column name for source.
	Target(source string) string
	columnSpec()
}

// Rename relabels the source column and does nothing else.
type Rename string

func (r Rename) Target(string) string { return string(r) }
func (Rename) columnSpec()            {}

// Structured is the full per-column rule. Zero fields are skipped.
type Structured struct {
	// Rename is the target name; empty keeps the source name.
	Rename string
	// FnName names a function in the engine's Funcs registry. Fn, when set,
	// takes precedence and is used as is.
	FnName string
	Fn     Func
	// Type is one of int64, int32, int, float64, float32, string, str,
	// bool or object.
	Type string
	// Replace substitutes values equal to a key with the mapped value.
	Replace map[any]any
	// DateFormat is a strftime layout, e.g. "%Y-%m-%dT%H:%M:%S".
	DateFormat string
	// FillNA replaces nulls when non-nil. It is cast to Type, or parsed with
	// DateFormat when one is set, when the recipe is compiled.
	FillNA any
}

func (s *Structured) Target(source string) string {
	if s != nil && s.Rename != "" {
		return s.Rename
	}
	return source
}
func (*Structured) columnSpec() {}

// Column pairs a source column with its spec.
type Column struct {
	Source string
	Spec   ColumnSpec
}

// Target returns the output column name.
func (c Column) Target() string {
	if c.Spec == nil {
		return c.Source
	}
	return c.Spec.Target(c.Source)
}

// Recipe is an ordered list of column rules.
type Recipe []Column

// Canonical returns the recipe targets in recipe order followed by any of
// known that are not already included. Duplicates are dropped.
func (r Recipe) Canonical(known ...string) []string {
	out := make([]string, 0, len(r)+len(known))
	for _, c := range r {
		if t := c.Target(); !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	for _, k := range known {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// Sources returns the source column names in recipe order.
func (r Recipe) Sources() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.Source
	}
	return out
}

// structuredJSON is the wire shape of a Structured spec.
type structuredJSON struct {
	Rename     string         `json:"rename"`
	Fn         string         `json:"fn"`
	Type       string         `json:"type"`
	Replace    map[string]any `json:"replace"`
	DateFormat string         `json:"date_format"`
	FillNA     any            `json:"fillna"`
}

// ParseColumnSpec classifies one JSON value as a Rename (string) or a
// *Structured (object). Anything else is a *ConfigError.
func ParseColumnSpec(source string, raw json.RawMessage) (ColumnSpec, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, &ConfigError{Column: source, Reason: "empty column spec"}
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ConfigError{Column: source, Reason: err.Error()}
		}
		if s == "" {
			return nil, &ConfigError{Column: source, Reason: "empty rename target"}
		}
		return Rename(s), nil
	case '{':
		var w structuredJSON
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(&w); err != nil {
			return nil, &ConfigError{Column: source, Reason: err.Error()}
		}
		s := &Structured{
			Rename:     w.Rename,
			FnName:     w.Fn,
			Type:       w.Type,
			DateFormat: w.DateFormat,
			FillNA:     w.FillNA,
		}
		if len(w.Replace) > 0 {
			s.Replace = make(map[any]any, len(w.Replace))
			for k, v := range w.Replace {
				s.Replace[k] = v
			}
		}
		return s, nil
	default:
		return nil, &ConfigError{Column: source, Reason: fmt.Sprintf("column spec must be a string or an object, got %s", raw)}
	}
}

// UnmarshalJSON decodes a recipe object, keeping member order.
func (r *Recipe) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	if tok != json.Delim('{') {
		return &ConfigError{Reason: fmt.Sprintf("recipe must be a JSON object, got %v", tok)}
	}

	var out Recipe
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return &ConfigError{Reason: err.Error()}
		}
		source := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return &ConfigError{Column: source, Reason: err.Error()}
		}
		spec, err := ParseColumnSpec(source, raw)
		if err != nil {
			return err
		}
		out = append(out, Column{Source: source, Spec: spec})
	}
	if _, err := dec.Token(); err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	*r = out
	return nil
}

// Decode parses a JSON recipe and binds fn names against funcs.
func Decode(data []byte, funcs Funcs) (Recipe, error) {
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if err := r.Validate(funcs); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks every column spec: the shape is known, the type is
// supported, the date format converts and every fn name resolves in funcs.
func (r Recipe) Validate(funcs Funcs) error {
	_, err := compile(r, funcs)
	return err
}
