package httpds

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestJoinURL(t *testing.T) {
	t.Parallel()

	tests := []struct{ base, endpoint, want string }{
		{"https://api.disneyapi.dev", "character", "https://api.disneyapi.dev/character"},
		{"https://api.disneyapi.dev/", "character", "https://api.disneyapi.dev/character"},
		{"https://api.disneyapi.dev", "/character", "https://api.disneyapi.dev/character"},
		{"https://api.disneyapi.dev/", "/character", "https://api.disneyapi.dev//character"},
		{"", "character", "character"},
		{"https://api.disneyapi.dev", "", "https://api.disneyapi.dev"},
	}
	for _, tc := range tests {
		if got := JoinURL(tc.base, tc.endpoint); got != tc.want {
			t.Fatalf("JoinURL(%q, %q) = %q; want %q", tc.base, tc.endpoint, got, tc.want)
		}
	}
}

func TestGetJSON_SendsParamsAndReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("pageSize") != "50" {
			t.Errorf("query = %q; want page=2&pageSize=50", r.URL.RawQuery)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{})
	body, err := c.GetJSON(context.Background(), srv.URL+"/character?page=2", url.Values{"pageSize": {"50"}})
	if err != nil {
		t.Fatalf("GetJSON error: %v", err)
	}
	if string(body) != `{"data":[]}` {
		t.Fatalf("body = %q", body)
	}
}

func TestGetJSON_Non2xxIsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "no such endpoint\n")
	}))
	defer srv.Close()

	_, err := NewClient(Config{}).GetJSON(context.Background(), srv.URL, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v; want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Body != "no such endpoint" {
		t.Fatalf("APIError = %+v; want 404 with body", apiErr)
	}
}

func TestGetJSON_ExhaustedRetriesIsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 1})
	c.sleep = func(time.Duration) {}

	_, err := c.GetJSON(context.Background(), srv.URL, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("error = %v; want *APIError with 502", err)
	}
}

func TestPostJSON_EncodesPayload(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("method=%s content-type=%q", r.Method, r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	body, err := NewClient(Config{}).PostJSON(context.Background(), srv.URL, map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("PostJSON error: %v", err)
	}
	if string(body) != "ok" || got["text"] != "hi" {
		t.Fatalf("body=%q payload=%v", body, got)
	}
}
