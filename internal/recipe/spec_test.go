package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/zeebo/xxh3"
)

func TestRecipeUnmarshalJSON_KeepsOrderAndShapes(t *testing.T) {
	t.Parallel()

	const payload = `{
	  "_id": {"rename": "id", "type": "int64"},
	  "films": "films",
	  "shortFilms": "short_films",
	  "name": {"fn": "sha256"},
	  "status": {"replace": {"N/A": null, "1": "active"}, "fillna": "unknown"}
	}`

	var r Recipe
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if got, want := r.Sources(), []string{"_id", "films", "shortFilms", "name", "status"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("sources = %v; want %v", got, want)
	}
	if got, want := r.Canonical(), []string{"id", "films", "short_films", "name", "status"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("canonical = %v; want %v", got, want)
	}

	if _, ok := r[1].Spec.(Rename); !ok {
		t.Fatalf("films spec = %T; want Rename", r[1].Spec)
	}
	s, ok := r[4].Spec.(*Structured)
	if !ok {
		t.Fatalf("status spec = %T; want *Structured", r[4].Spec)
	}
	if v, ok := s.Replace["N/A"]; !ok || v != nil {
		t.Fatalf("replace[N/A] = %#v (present=%v); want nil", v, ok)
	}
	if s.FillNA != "unknown" {
		t.Fatalf("fillna = %#v; want unknown", s.FillNA)
	}
}

func TestCanonical_AppendsKnownColumns(t *testing.T) {
	t.Parallel()

	r := Recipe{
		{Source: "a", Spec: Rename("x")},
		{Source: "b", Spec: Rename("x")},
		{Source: "c", Spec: &Structured{}},
	}
	if got, want := r.Canonical("c", "legacy"), []string{"x", "c", "legacy"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Canonical = %v; want %v", got, want)
	}
}

func TestParseColumnSpec_ErrorNamesColumn(t *testing.T) {
	t.Parallel()

	_, err := ParseColumnSpec("films", json.RawMessage(`[1,2]`))
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Column != "films" {
		t.Fatalf("error = %v; want *ConfigError for films", err)
	}
}

func TestDecode_BindsFunctions(t *testing.T) {
	t.Parallel()

	funcs := Funcs{"custom": func(v any) (any, error) { return v, nil }}
	if _, err := Decode([]byte(`{"a": {"fn": "custom"}}`), funcs); err != nil {
		t.Fatalf("Decode with custom fn: %v", err)
	}
	if _, err := Decode([]byte(`{"a": {"fn": "sha256"}}`), funcs); err == nil {
		t.Fatalf("expected error: sha256 is not in the custom registry")
	}
	if _, err := Decode([]byte(`{"a": {"date_format": "%Y-%m-%d"}}`), nil); err != nil {
		t.Fatalf("Decode with nil registry: %v", err)
	}
}

func TestDecode_DuplicateSource(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"a": "x", "a": "y"}`), nil)
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Column != "a" {
		t.Fatalf("Decode error = %v; want ConfigError on column a", err)
	}
}

func TestSnakeCase(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"shortFilms", "short_films"},
		{"tvShows", "tv_shows"},
		{"parkAttractions", "park_attractions"},
		{"imageURL", "image_url"},
		{"__v", "v"},
		{"Park Attractions", "park_attractions"},
		{"Señorita Día", "senorita_dia"},
		{"already_snake", "already_snake"},
	}
	for _, tc := range tests {
		if got := SnakeCase(tc.in); got != tc.want {
			t.Fatalf("SnakeCase(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestDefaultFuncs(t *testing.T) {
	t.Parallel()

	f := DefaultFuncs()
	tests := []struct {
		fn   string
		in   any
		want any
	}{
		{"strip", "  Mickey ", "Mickey"},
		{"lower", "Mickey", "mickey"},
		{"upper", "Mickey", "MICKEY"},
		{"fold", "Gaëtan", "Gaetan"},
		{"snake", "videoGames", "video_games"},
		{"xxh3", "Mickey", fmt.Sprintf("%016x", xxh3.HashString("Mickey"))},
		{"sha256", json.Number("112"), hexSHA("112")},
		{"sha256", nil, nil},
	}
	for _, tc := range tests {
		got, err := f[tc.fn](tc.in)
		if err != nil {
			t.Fatalf("%s(%#v) error: %v", tc.fn, tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s(%#v) = %#v; want %#v", tc.fn, tc.in, got, tc.want)
		}
	}
}

func TestCast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  string
		in   any
		want any
	}{
		{"int64", "42", int64(42)},
		{"int64", "42.0", int64(42)},
		{"int64", json.Number("7"), int64(7)},
		{"int64", 3.0, int64(3)},
		{"int32", "12", int32(12)},
		{"int", true, 1},
		{"float64", "1.5", 1.5},
		{"float32", json.Number("2.5"), float32(2.5)},
		{"string", json.Number("10"), "10"},
		{"str", 5, "5"},
		{"bool", "yes", true},
		{"bool", int64(0), false},
		{"object", []any{"a"}, []any{"a"}},
		{"int64", nil, nil},
	}
	for _, tc := range tests {
		got, err := Cast(tc.in, tc.typ)
		if err != nil {
			t.Fatalf("Cast(%#v, %s) error: %v", tc.in, tc.typ, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Cast(%#v, %s) = %#v (%T); want %#v (%T)", tc.in, tc.typ, got, got, tc.want, tc.want)
		}
	}

	if _, err := Cast("3.5", "int64"); err == nil {
		t.Fatalf("Cast(3.5, int64) should fail")
	}
	if _, err := Cast("x", "decimal"); err == nil {
		t.Fatalf("unsupported type should fail")
	}
}
