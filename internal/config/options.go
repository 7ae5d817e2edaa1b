package config

import "encoding/json"

// Options is a small helper to fetch typed values from free-form maps
// decoded from JSON or YAML. It performs minimal coercion and returns the
// provided default when a key is absent or of an unexpected type.
type Options map[string]any

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the integer value for key or def. JSON numbers arrive as
// float64 and YAML integers as int; both are accepted, as is json.Number.
func (o Options) Int(key string, def int) int {
	if n, ok := o.intValue(key); ok {
		return n
	}
	return def
}

func (o Options) intValue(key string) (int, bool) {
	v, ok := o[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// StringSlice returns a []string for key when the value is an array.
// Non-string elements are skipped. Returns nil when the key is missing or
// the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	return o[key]
}

// UnmarshalJSON makes a null or missing object decode to an empty,
// non-nil Options.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
