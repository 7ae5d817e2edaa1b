// Package file implements a local filesystem-backed data source, used for
// the scratch files modules stage between extract and load.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"disneyetl/internal/datasource"
)

// Local opens one file on the local disk.
type Local struct{ path string }

var _ datasource.Source = (*Local)(nil)

// NewLocal returns a Local bound to path. Open may be called any number of
// times, concurrently.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open opens the file for reading.
//
// Behavior:
//   - A context that is already done returns its error without touching the
//     filesystem.
//   - Filesystem errors are wrapped with the path and still match
//     errors.Is(err, os.ErrNotExist) and friends.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
