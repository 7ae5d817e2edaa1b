package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	strftime "github.com/ncruces/go-strftime"
)

// Supported cast targets. "str" is an alias of "string".
const (
	TypeInt64   = "int64"
	TypeInt32   = "int32"
	TypeInt     = "int"
	TypeFloat64 = "float64"
	TypeFloat32 = "float32"
	TypeString  = "string"
	TypeStr     = "str"
	TypeBool    = "bool"
	TypeObject  = "object"
)

var errNotIntegral = errors.New("not an integral value")

// caster converts one non-null value.
type caster func(any) (any, error)

func casterFor(typ string) (caster, bool) {
	switch strings.ToLower(typ) {
	case TypeInt64:
		return func(v any) (any, error) { return toInt64(v) }, true
	case TypeInt32:
		return func(v any) (any, error) {
			i, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			if i < math.MinInt32 || i > math.MaxInt32 {
				return nil, fmt.Errorf("%d overflows int32", i)
			}
			return int32(i), nil
		}, true
	case TypeInt:
		return func(v any) (any, error) {
			i, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return int(i), nil
		}, true
	case TypeFloat64:
		return func(v any) (any, error) { return toFloat64(v) }, true
	case TypeFloat32:
		return func(v any) (any, error) {
			f, err := toFloat64(v)
			if err != nil {
				return nil, err
			}
			return float32(f), nil
		}, true
	case TypeString, TypeStr:
		return func(v any) (any, error) { return toString(v), nil }, true
	case TypeBool:
		return func(v any) (any, error) { return toBool(v) }, true
	case TypeObject:
		return func(v any) (any, error) { return v, nil }, true
	default:
		return nil, false
	}
}

// Cast converts v to typ. Null stays null.
func Cast(v any, typ string) (any, error) {
	c, ok := casterFor(typ)
	if !ok {
		return nil, fmt.Errorf("unsupported type %q", typ)
	}
	if v == nil {
		return nil, nil
	}
	return c(v)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		return floatToInt(x)
	case float32:
		return floatToInt(float64(x))
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return parseInt(x.String())
	case string:
		return parseInt(strings.TrimSpace(x))
	default:
		return 0, fmt.Errorf("cannot cast %T to int", v)
	}
}

// parseInt accepts "42" and, when a '.' is present, integral floats such
// as "42.0".
func parseInt(s string) (int64, error) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, nil
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return floatToInt(f)
		}
	}
	return 0, err
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errNotIntegral
	}
	// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%g overflows int64", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("cannot cast %T to float", v)
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(v)
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "t", "true", "yes", "y":
			return true, nil
		case "0", "f", "false", "no", "n":
			return false, nil
		}
		return false, fmt.Errorf("cannot cast %q to bool", x)
	default:
		f, err := toFloat64(v)
		if err != nil {
			return false, fmt.Errorf("cannot cast %T to bool", v)
		}
		return f != 0, nil
	}
}

// dateParser parses text with a Go layout derived from a strftime format.
type dateParser struct {
	layout string
}

func newDateParser(format string) (dateParser, error) {
	layout, err := strftime.Layout(format)
	if err != nil {
		return dateParser{}, err
	}
	return dateParser{layout: layout}, nil
}

// parse returns nil for null, passes time.Time through and parses strings.
func (p dateParser) parse(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return x, nil
	case string:
		t, err := time.Parse(p.layout, strings.TrimSpace(x))
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("cannot parse %T as a date", v)
	}
}

// ParseDate parses v with a strftime format.
func ParseDate(v any, format string) (any, error) {
	p, err := newDateParser(format)
	if err != nil {
		return nil, err
	}
	return p.parse(v)
}
