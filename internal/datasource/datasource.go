// Package datasource abstracts where pipeline input bytes come from.
package datasource

import (
	"context"
	"fmt"
	"io"
)

// Source opens one input stream, e.g. a staged scratch file.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Decode opens src, hands the stream to fn and closes it. A close error is
// returned only when fn succeeded.
func Decode[T any](ctx context.Context, src Source, fn func(io.Reader) (T, error)) (out T, err error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("datasource: close: %w", cerr)
		}
	}()
	return fn(rc)
}
