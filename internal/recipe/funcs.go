package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Func is a pure scalar transform. The engine applies it elementwise and
// never inspects it.
type Func func(any) (any, error)

// Funcs resolves fn names used in JSON recipes.
type Funcs map[string]Func

// DefaultFuncs returns a fresh registry with the built-in functions:
//
//	sha256  hex SHA-256 of the string value
//	xxh3    hex XXH3-64 of the string value
//	strip   trim surrounding whitespace
//	lower   lowercase
//	upper   uppercase
//	fold    strip diacritics (NFD, drop marks, NFC)
//	snake   camelCase / spaced text to snake_case
//
// All of them pass null through unchanged.
func DefaultFuncs() Funcs {
	return Funcs{
		"sha256": stringFunc(func(s string) string {
			sum := sha256.Sum256([]byte(s))
			return hex.EncodeToString(sum[:])
		}),
		"xxh3": stringFunc(func(s string) string {
			return fmt.Sprintf("%016x", xxh3.HashString(s))
		}),
		"strip": stringFunc(strings.TrimSpace),
		"lower": stringFunc(strings.ToLower),
		"upper": stringFunc(strings.ToUpper),
		"fold":  stringFunc(Fold),
		"snake": stringFunc(SnakeCase),
	}
}

// stringFunc lifts a string transform into a Func. Null passes through;
// numbers are formatted first; other types are an error.
func stringFunc(f func(string) string) Func {
	return func(v any) (any, error) {
		switch x := v.(type) {
		case nil:
			return nil, nil
		case string:
			return f(x), nil
		case json.Number:
			return f(x.String()), nil
		case int64:
			return f(strconv.FormatInt(x, 10)), nil
		case int:
			return f(strconv.Itoa(x)), nil
		default:
			return nil, fmt.Errorf("want string, got %T", v)
		}
	}
}

// Fold removes combining marks: "Señorita" -> "Senorita".
func Fold(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// SnakeCase converts "shortFilms" to "short_films" and "Park Attractions"
// to "park_attractions". Accents are folded, other punctuation is dropped.
func SnakeCase(s string) string {
	s = Fold(strings.TrimSpace(s))

	var b strings.Builder
	prevUnderscore := true
	prevLower := false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			if prevLower && !prevUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore, prevLower = false, false
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevUnderscore, prevLower = false, true
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
			prevLower = false
		}
	}
	return strings.Trim(b.String(), "_")
}
