package disneyapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"disneyetl/internal/datasource/httpds"
)

// newPagedServer serves totalPages pages of perPage characters each,
// linking them through info.nextPage.
func newPagedServer(t *testing.T, totalPages, perPage int, hits *int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/character" {
			http.NotFound(w, r)
			return
		}
		pageNo := 1
		if v := r.URL.Query().Get("page"); v != "" {
			pageNo, _ = strconv.Atoi(v)
		}
		var data []map[string]any
		for i := 0; i < perPage; i++ {
			id := (pageNo-1)*perPage + i + 1
			data = append(data, map[string]any{"_id": id, "name": fmt.Sprintf("c%d", id)})
		}
		var next any
		if pageNo < totalPages {
			next = fmt.Sprintf("%s/character?page=%d&pageSize=%s", srv.URL, pageNo+1, r.URL.Query().Get("pageSize"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"info": map[string]any{"count": perPage, "totalPages": totalPages, "nextPage": next},
			"data": data,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCharacters_FollowsNextPage(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := newPagedServer(t, 3, 2, &hits)
	c := New(httpds.NewClient(httpds.Config{}), srv.URL, zerolog.Nop())

	got, err := c.Characters(context.Background(), ListOptions{PageSize: 2})
	if err != nil {
		t.Fatalf("Characters error: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("len = %d; want 6", len(got))
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("hits = %d; want 3", hits)
	}
	var last struct {
		ID int `json:"_id"`
	}
	if err := json.Unmarshal(got[5], &last); err != nil || last.ID != 6 {
		t.Fatalf("last = %s (%v); want _id 6", got[5], err)
	}
}

func TestCharacters_LimitStopsPaging(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := newPagedServer(t, 10, 4, &hits)
	c := New(httpds.NewClient(httpds.Config{}), srv.URL+"/", zerolog.Nop())

	got, err := c.Characters(context.Background(), ListOptions{Limit: 5, PageSize: 4})
	if err != nil {
		t.Fatalf("Characters error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d; want 5", len(got))
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("hits = %d; want 2", hits)
	}
}

func TestCharacters_APIErrorIsSurfaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(httpds.NewClient(httpds.Config{}), srv.URL, zerolog.Nop()).Characters(context.Background(), ListOptions{})
	var apiErr *httpds.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("error = %v; want *httpds.APIError 403", err)
	}
}

type fakeFetcher map[string]string

func (f fakeFetcher) GetJSON(_ context.Context, rawURL string, _ url.Values) ([]byte, error) {
	b, ok := f[rawURL]
	if !ok {
		return nil, fmt.Errorf("unexpected url %s", rawURL)
	}
	return []byte(b), nil
}

func TestCharacters_SingleObjectDataAndLoop(t *testing.T) {
	t.Parallel()

	single := fakeFetcher{
		"http://api/character": `{"info":{"count":1,"nextPage":null},"data":{"_id":4,"name":"Mulan"}}`,
	}
	got, err := New(single, "http://api", zerolog.Nop()).Characters(context.Background(), ListOptions{})
	if err != nil || len(got) != 1 {
		t.Fatalf("single object page = (%d items, %v); want 1 item", len(got), err)
	}

	loop := fakeFetcher{
		"http://api/character": `{"info":{"nextPage":"http://api/character"},"data":[{"_id":1}]}`,
	}
	if _, err := New(loop, "http://api", zerolog.Nop()).Characters(context.Background(), ListOptions{}); err == nil {
		t.Fatalf("expected pagination loop error")
	}
}

func TestEncodeArray(t *testing.T) {
	t.Parallel()

	got := EncodeArray([]json.RawMessage{
		json.RawMessage(`{"name":"a","_id":1}`),
		json.RawMessage(" {\"_id\":2}\n"),
	})
	if string(got) != `[{"name":"a","_id":1},{"_id":2}]` {
		t.Fatalf("EncodeArray = %s", got)
	}
	if string(EncodeArray(nil)) != "[]" {
		t.Fatalf("EncodeArray(nil) = %s; want []", EncodeArray(nil))
	}
}
