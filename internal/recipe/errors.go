package recipe

import "fmt"

// ConfigError reports a recipe that cannot be interpreted. It is raised
// before any row is touched.
type ConfigError struct {
	Column string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Column == "" {
		return "recipe: " + e.Reason
	}
	return fmt.Sprintf("recipe: column %q: %s", e.Column, e.Reason)
}

// CastError reports a value that failed a fn, type or date_format step.
// It aborts the whole transform.
type CastError struct {
	Column string
	Row    int
	Step   string // "fn", "type" or "date_format"
	Target string // type name or date format
	Value  any
	Err    error
}

func (e *CastError) Error() string {
	return fmt.Sprintf("recipe: column %q row %d: %s %s: value %#v: %v",
		e.Column, e.Row, e.Step, e.Target, e.Value, e.Err)
}

func (e *CastError) Unwrap() error { return e.Err }
