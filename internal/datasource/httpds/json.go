package httpds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxErrorBody caps how much of a failed response body is kept on APIError.
const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from an upstream API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("httpds: failed to request API: %d | %s", e.StatusCode, e.Body)
}

// JoinURL joins base and endpoint with exactly one slash when neither side
// carries it; otherwise the two are concatenated as is.
func JoinURL(base, endpoint string) string {
	if base != "" && !strings.HasSuffix(base, "/") && endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		return base + "/" + endpoint
	}
	return base + endpoint
}

// WithQuery appends params to rawURL, keeping any query it already has.
func WithQuery(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("httpds: parse url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetJSON issues a GET with optional query params and returns the body of a
// 2xx response. Any other status is an *APIError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	full, err := WithQuery(rawURL, params)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Accept", "application/json")
	resp, err := c.Get(ctx, full, h)
	if err != nil {
		return nil, err
	}
	return readOK(resp, http.MethodGet, full)
}

// PostJSON marshals payload, posts it as application/json and returns the
// body of a 2xx response. Any other status is an *APIError.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("httpds: encode payload: %w", err)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	resp, err := c.Post(ctx, rawURL, b, h)
	if err != nil {
		return nil, err
	}
	return readOK(resp, http.MethodPost, rawURL)
}

func readOK(resp *http.Response, method, rawURL string) ([]byte, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpds: read body from %s: %w", rawURL, err)
	}
	return b, nil
}
