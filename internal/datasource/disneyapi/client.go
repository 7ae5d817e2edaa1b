// Package disneyapi reads characters from the public Disney API
// (https://api.disneyapi.dev).
//
// The character endpoint is paginated:
//
//	{"info": {"count": 50, "totalPages": 149, "nextPage": "https://.../character?page=2&pageSize=50"},
//	 "data": [{"_id": 112, "name": "Achilles", ...}, ...]}
//
// Characters are kept as raw JSON so their member order reaches the
// normalizer unchanged.
package disneyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"disneyetl/internal/datasource/httpds"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://api.disneyapi.dev"

// CharacterEndpoint is joined onto the base URL.
const CharacterEndpoint = "character"

// Fetcher is the subset of *httpds.Client used here.
type Fetcher interface {
	GetJSON(ctx context.Context, rawURL string, params url.Values) ([]byte, error)
}

// Client pages through the character endpoint.
type Client struct {
	http    Fetcher
	baseURL string
	log     zerolog.Logger
}

// New returns a Client. An empty baseURL means DefaultBaseURL.
func New(f Fetcher, baseURL string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: f, baseURL: baseURL, log: logger}
}

// ListOptions bounds a character listing.
type ListOptions struct {
	// Limit caps the number of characters returned; <= 0 means no cap.
	Limit int
	// PageSize is sent as the pageSize query parameter when > 0.
	PageSize int
}

type pageInfo struct {
	Count      int     `json:"count"`
	TotalPages int     `json:"totalPages"`
	NextPage   *string `json:"nextPage"`
}

type page struct {
	Info pageInfo        `json:"info"`
	Data json.RawMessage `json:"data"`
}

// Characters follows info.nextPage until it is null or Limit characters
// were collected.
func (c *Client) Characters(ctx context.Context, opt ListOptions) ([]json.RawMessage, error) {
	params := url.Values{}
	if opt.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(opt.PageSize))
	}

	next := httpds.JoinURL(c.baseURL, CharacterEndpoint)
	seen := map[string]bool{}
	var out []json.RawMessage

	for n := 1; next != ""; n++ {
		if seen[next] {
			return nil, fmt.Errorf("disneyapi: pagination loop at %s", next)
		}
		seen[next] = true

		body, err := c.http.GetJSON(ctx, next, params)
		if err != nil {
			return nil, fmt.Errorf("disneyapi: page %d: %w", n, err)
		}
		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("disneyapi: decode page %d: %w", n, err)
		}
		items, err := splitData(p.Data)
		if err != nil {
			return nil, fmt.Errorf("disneyapi: page %d: %w", n, err)
		}
		out = append(out, items...)
		c.log.Debug().Int("page", n).Int("items", len(items)).Int("total", len(out)).Msg("fetched character page")

		if opt.Limit > 0 && len(out) >= opt.Limit {
			out = out[:opt.Limit]
			break
		}
		next = ""
		if p.Info.NextPage != nil {
			next = *p.Info.NextPage
		}
		// nextPage already carries the query.
		params = nil
	}

	c.log.Info().Int("characters", len(out)).Msg("characters extracted")
	return out, nil
}

// splitData accepts an array of objects or, for single-result pages, one
// object.
func splitData(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
		return items, nil
	case '{':
		return []json.RawMessage{raw}, nil
	default:
		return nil, fmt.Errorf("data must be an array or an object, got %.20s", raw)
	}
}

// EncodeArray renders characters as one JSON array, each element byte for
// byte as received.
func EncodeArray(items []json.RawMessage) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(bytes.TrimSpace(it))
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
